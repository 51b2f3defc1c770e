// Package consumer runs a Handler over one Kafka topic as a supervised worker.
//
// Each poll yields at most one message. Values written in the schema registry wire
// format are decoded to Avro native values, configured fields are normalized, and the
// result reaches the handler as a *Message. When the handler succeeds and the commit
// policy is on_complete, the offset is committed; a failed message is never
// committed, so the next attempt reads it again.
//
//	class := consumer.NewClass(consumer.Config{
//		Spec:              worker.Spec{Name: "orders", Topic: "orders", ConsumerGroup: "billing"},
//		BrokerURL:         "localhost:9092",
//		SchemaRegistryURL: "http://localhost:8081",
//		Handler: consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
//			amount, _ := msg.Field("amount")
//			return charge(ctx, amount)
//		}),
//		Normalization: consumer.Normalization{DecimalFields: []string{"amount"}},
//	})
//	registry.Register("orders", class, 2)
//
// Handlers that also implement PartitionEOFHandler are told when the consumer catches
// up with a partition.
//
// # Instances and partitions
//
// Every instance of a registration joins the same consumer group, so registering a
// class with a count of 2 splits the topic's partitions between two consumers.
//
// # Start position
//
// StartCommitted, the default, resumes from the group's committed offsets.
// StartBeginning, StartEnd and StartTimestamp seek the partitions the group hands
// this instance, and only those, once the instance has joined. A seek does not
// leave the group, and it holds until the next commit of that partition.
//
//	cfg.StartPosition = consumer.StartTimestamp
//	cfg.StartTime = time.Now().Add(-time.Hour)
//
// # Normalization
//
// Decoded record fields can be converted in place before the handler sees them.
// Epoch seconds or milliseconds become time.Time, numeric strings become
// decimal.Decimal and truthy values become bool. The field named "timestamp" is
// converted to time.Time unless TimestampFields is set; an empty, non-nil slice
// turns that off.
//
// # Failures
//
// A handler error fails the attempt. The supervisor tears the worker down and builds
// a new one, which reads the failed message again from the last commit. Broker errors
// surfaced by a poll are returned as *kafka.FatalError.
package consumer
