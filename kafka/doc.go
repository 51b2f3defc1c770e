// Package kafka is the broker layer of the worker framework.
//
// Workers never talk to a Kafka client library directly. They use two capability
// interfaces, Consumer and Producer, opened through a Factory from a flat settings
// map in librdkafka style:
//
//	settings := kafka.MergeSettings(kafka.Settings{
//	    "bootstrap.servers":  "localhost:9092",
//	    "group.id":           "orders",
//	    "enable.auto.commit": false,
//	}, userSettings)
//
//	consumer, err := kafka.NewClientFactory().NewConsumer(settings)
//
// MergeSettings ignores nil values and keys without a dot, and moves "topic."
// prefixed keys into the nested default.topic.config map.
//
// # Settings
//
// Settings are decoded into ConsumerSettings or ProducerSettings with
// mapstructure, weakly typed, so values read from YAML or environment variables
// as strings still land in int and bool fields:
//
//	cfg, err := kafka.DecodeConsumerSettings(kafka.Settings{
//	    "bootstrap.servers":    "broker-1:9092,broker-2:9092",
//	    "group.id":             "orders",
//	    "session.timeout.ms":   "6000",
//	    "enable.partition.eof": "true",
//	})
//
// Keys the typed views do not know are kept in Extra and otherwise ignored, so a
// settings map written for librdkafka can be reused as is.
//
// # Backends
//
// segmentio/kafka-go is the primary backend for both consumers and producers.
// Setting producer.backend to "sarama" selects an IBM/sarama sync producer with the
// same contract.
//
//	producer, err := factory.NewProducer(kafka.Settings{
//	    "bootstrap.servers": "localhost:9092",
//	    "producer.backend":  kafka.BackendSarama,
//	    "compression.codec": "zstd",
//	})
//
// # Consumer groups
//
// Subscribe joins the consumer group named by group.id. The kafka-go backend
// runs the membership through kafka.ConsumerGroup: every generation hands this
// member its own partitions, each read by a dedicated partition reader that
// starts at the group's committed offset, or at auto.offset.reset when nothing
// was committed yet.
//
// Assignment waits for the first generation and returns only this member's
// share. Two consumers of one group therefore see disjoint assignments once the
// group has settled:
//
//	if err := consumer.Subscribe(ctx, []string{"orders"}); err != nil {
//	    return err
//	}
//	owned, err := consumer.Assignment(ctx)
//
// Assign replaces group membership with a static list of partitions. Commits
// from an assigned consumer still go to group.id, so a later Subscribe resumes
// where it stopped.
//
// # Seeking
//
// Seek moves owned partitions to a new position without leaving the group.
// Messages fetched before the seek are dropped. Offsets may be absolute or one
// of FirstOffset and LastOffset; OffsetsForTimes turns millisecond timestamps
// into offsets first:
//
//	owned, _ := consumer.Assignment(ctx)
//	for i := range owned {
//	    owned[i].Offset = since.UnixMilli()
//	}
//	resolved, err := consumer.OffsetsForTimes(ctx, owned)
//	if err == nil {
//	    err = consumer.Seek(ctx, resolved)
//	}
//
// A seek target survives a rebalance that leaves the partition with this member,
// until the next commit of that partition.
//
// # Polling
//
// Consumer.Poll returns a tagged Event: a message, a partition EOF (only when
// enable.partition.eof is set) or a transport error. A nil Event means the poll
// timed out, which is not an error.
//
//	for {
//	    event := consumer.Poll(ctx, 100*time.Millisecond)
//	    if event == nil {
//	        continue
//	    }
//	    switch event.Kind {
//	    case kafka.EventMessage:
//	        handle(event.Message)
//	    case kafka.EventPartitionEOF:
//	        // caught up with event.Partition
//	    case kafka.EventError:
//	        return &kafka.FatalError{Err: event.Err}
//	    }
//	}
//
// # Committing
//
// Commit stores the offset after the last polled message of every owned
// partition. With async it returns at once and logs failures; Close waits for
// pending async commits. enable.auto.commit runs the same commit on a timer of
// auto.commit.interval.ms.
//
// # Producing
//
// Producers resolve the partition before calling Produce. RandomPartitioner is the
// default; HashPartitioner uses murmur2 so equal keys always map to the same
// partition.
//
// Within one Produce call the records of a partition are written as a unit: they
// all succeed or all fail with the same error. The producer worker depends on this
// to retry a failed partition without reordering it, so a batch handed to Produce
// should not exceed batch.num.messages.
//
//	err := producer.Produce(ctx, records, func(report kafka.DeliveryReport) {
//	    if report.Err != nil && kafka.IsRetryableError(report.Err) {
//	        retry(report.Record)
//	    }
//	})
//
// # Security
//
// security.protocol selects plaintext, ssl, sasl_plaintext or sasl_ssl. TLS uses
// ssl.ca.location and, for mutual TLS, ssl.certificate.location and
// ssl.key.location. SASL supports PLAIN, SCRAM-SHA-256 and SCRAM-SHA-512 on both
// backends; sarama's SCRAM conversation runs on xdg-go/scram.
//
//	settings := kafka.Settings{
//	    "bootstrap.servers": "broker:9093",
//	    "security.protocol": "sasl_ssl",
//	    "sasl.mechanism":    "SCRAM-SHA-512",
//	    "sasl.username":     user,
//	    "sasl.password":     password,
//	    "ssl.ca.location":   "/etc/kafka/ca.pem",
//	}
//
// # Errors
//
// TranslateError maps backend errors onto the sentinel errors of this package, and
// IsRetryableError / IsPermanentError classify them. A transport error surfaced by
// a poll is wrapped in FatalError by the consumer worker so the supervisor restarts
// the attempt.
//
// # Dependency injection
//
// FXModule provides a *ClientFactory and the Factory interface. A Logger and an
// observability.Observer are picked up when the application provides them:
//
//	app := fx.New(
//	    logger.FXModule,
//	    kafka.FXModule,
//	    fx.Invoke(func(factory kafka.Factory) { ... }),
//	)
//
// # Observability
//
// Every backend reports poll, commit and produce operations to the Observer with
// component "kafka", the topic as resource and the partition as sub-resource.
//
// # Testing
//
// Package kafkatest provides in-memory Consumer, Producer and Factory fakes. The
// fake consumer replays scripted events, and a kafkatest.Group splits partitions
// between fake consumers the way a broker would for one consumer group.
package kafka
