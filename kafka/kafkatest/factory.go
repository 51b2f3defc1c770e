package kafkatest

import (
	"slices"
	"sync"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

// Factory hands out fixed fakes and records the settings each backend was opened with.
type Factory struct {
	mu sync.Mutex

	Consumer *Consumer
	Producer *Producer

	// ConsumerErr and ProducerErr fail the matching constructor.
	ConsumerErr error
	ProducerErr error

	consumerSettings []kafka.Settings
	producerSettings []kafka.Settings
}

var _ kafka.Factory = (*Factory)(nil)

// NewFactory returns a factory serving consumer and producer.
func NewFactory(consumer *Consumer, producer *Producer) *Factory {
	return &Factory{Consumer: consumer, Producer: producer}
}

func (f *Factory) NewConsumer(settings kafka.Settings) (kafka.Consumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumerSettings = append(f.consumerSettings, settings)
	if f.ConsumerErr != nil {
		return nil, f.ConsumerErr
	}
	if f.Consumer == nil {
		f.Consumer = NewConsumer()
	}
	return f.Consumer, nil
}

func (f *Factory) NewProducer(settings kafka.Settings) (kafka.Producer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.producerSettings = append(f.producerSettings, settings)
	if f.ProducerErr != nil {
		return nil, f.ProducerErr
	}
	if f.Producer == nil {
		f.Producer = NewProducer()
	}
	return f.Producer, nil
}

// ConsumerSettings returns the settings of every NewConsumer call.
func (f *Factory) ConsumerSettings() []kafka.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.consumerSettings)
}

// ProducerSettings returns the settings of every NewProducer call.
func (f *Factory) ProducerSettings() []kafka.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.producerSettings)
}
