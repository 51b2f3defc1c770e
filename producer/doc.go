// Package producer sends schema-encoded messages to Kafka.
//
// A Producer owns a bounded queue and a single delivery goroutine. Sends encode the
// key and value with the registry schema of their subject, pick a partition and
// queue the record; when the queue stays full past EnqueueTimeout the send is
// retried with backoff and finally fails with kafka.ErrQueueFull. The delivery
// goroutine writes queued records in batches and retries transient broker errors.
//
//	p, err := producer.New(producer.HashedPartitionProducer(producer.Config{
//		Topic:             "orders",
//		KeySchema:         `"string"`,
//		ValueSchema:       orderSchema,
//		BrokerURL:         "localhost:9092",
//		SchemaRegistryURL: "http://localhost:8081",
//	}))
//	if err != nil {
//		return err
//	}
//	defer p.Close(context.Background())
//
//	err = p.SendMessage(ctx, "o-1", map[string]any{"id": "o-1", "amount": "12.50"})
//
// Registry builds named producers lazily and closes them together on shutdown.
//
// # Ordering
//
// Records of one partition reach the broker in submission order. When part of a
// batch fails with a retryable error, the later records of the failed partitions
// are retried with it, even those the broker did not reject.
//
// # Closing
//
// Close stops accepting sends and waits until every queued message has been
// delivered or failed. Context cancellation does not cut the drain short; the
// backend's write timeout and NumRetryAttempts bound it when the broker is down.
//
// # Batching
//
// The delivery goroutine takes up to BatchSize queued records per write. Linger is
// passed to the backend as linger.ms and defaults to a millisecond, so partial
// batches are flushed almost at once.
//
// # Timestamps
//
// Record timestamps are epoch milliseconds. GetTimestamp returns the current one and
// TimestampAt converts a given time:
//
//	err = p.SendMessages(ctx, []producer.Pending{{
//		Key:       "o-1",
//		Value:     order,
//		Timestamp: createdAt,
//	}})
package producer
