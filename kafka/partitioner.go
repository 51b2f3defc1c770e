package kafka

import (
	"math/rand/v2"

	"github.com/segmentio/kafka-go"
)

// Partitioner picks the partition a record is written to. partitions is never empty
// and is sorted ascending.
type Partitioner interface {
	// Partition returns one of partitions for a record with key, which may be nil.
	Partition(key []byte, partitions []int) int
}

// PartitionerFunc adapts a function to Partitioner.
type PartitionerFunc func(key []byte, partitions []int) int

// Partition calls f(key, partitions).
func (f PartitionerFunc) Partition(key []byte, partitions []int) int {
	return f(key, partitions)
}

// RandomPartitioner spreads records uniformly, ignoring the key.
type RandomPartitioner struct{}

// Partition returns a uniformly random element of partitions.
func (RandomPartitioner) Partition(_ []byte, partitions []int) int {
	return partitions[rand.IntN(len(partitions))] //nolint:gosec
}

// HashPartitioner routes a key to a fixed partition using the murmur2 hash the Java
// client uses, so records sharing a key land on the same partition across languages.
// Records without a key fall back to a random partition.
type HashPartitioner struct{}

// Partition returns the murmur2 choice for key, or a random partition for an empty key.
func (HashPartitioner) Partition(key []byte, partitions []int) int {
	if len(key) == 0 {
		return RandomPartitioner{}.Partition(key, partitions)
	}
	return murmur2.Balance(kafka.Message{Key: key}, partitions...)
}

var murmur2 = kafka.Murmur2Balancer{Consistent: true}

// recordBalancer honours the partition chosen by the producer and falls back to the
// wrapped balancer when none was chosen.
type recordBalancer struct {
	fallback kafka.Balancer
}

// Balance implements kafka.Balancer for the segmentio Writer.
func (b recordBalancer) Balance(msg kafka.Message, partitions ...int) int {
	if msg.Partition >= 0 {
		for _, p := range partitions {
			if p == msg.Partition {
				return p
			}
		}
	}
	return b.fallback.Balance(msg, partitions...)
}
