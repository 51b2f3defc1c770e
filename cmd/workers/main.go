// Command workers is a sample worker process. It tails a topic into the log and
// echoes another topic into a third one.
//
//	workers --config workers.yaml run
//	workers list
//	workers schemas --test-compatibility
package main

import (
	"context"
	"os"

	"github.com/aalemi-dev/kafka-workers/consumer"
	"github.com/aalemi-dev/kafka-workers/launcher"
	"github.com/aalemi-dev/kafka-workers/producer"
	"github.com/aalemi-dev/kafka-workers/worker"
)

func main() {
	launcher.New("workers", setup).Main()
}

func setup(env launcher.Env, workers *worker.Registry, producers *producer.Registry) error {
	tailTopic := getenv("TAIL_TOPIC", "events")
	echoIn := getenv("ECHO_INPUT_TOPIC", "echo-in")
	echoOut := getenv("ECHO_OUTPUT_TOPIC", "echo-out")

	log := env.Logger.Named("tail")
	tail := launcher.ConsumerClass(env, consumer.Config{
		Spec: worker.Spec{Name: "tail", Topic: tailTopic, CommitPolicy: worker.CommitAuto},
		Handler: consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
			log.InfoWithContext(ctx, "Message", nil, map[string]interface{}{
				"topic":     msg.Topic(),
				"partition": msg.Partition(),
				"offset":    msg.Offset(),
				"key":       string(msg.Key()),
				"value":     msg.Value(),
			})
			return nil
		}),
		StartPosition: consumer.StartEnd,
	})
	if err := workers.Register("tail", tail, 1); err != nil {
		return err
	}

	if err := producers.Register("echo", nil, producer.HashedPartitionProducer(producer.Config{Topic: echoOut, Sync: true})); err != nil {
		return err
	}
	echo := launcher.ConsumerClass(env, consumer.Config{
		Spec: worker.Spec{Name: "echo", Topic: echoIn},
		Handler: consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
			p, err := producers.Get(ctx, "echo")
			if err != nil {
				return err
			}
			return p.SendMessage(ctx, msg.Key(), msg.RawValue())
		}),
	})
	return workers.Register("echo", echo, 1)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
