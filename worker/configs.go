package worker

import (
	"maps"
	"time"
)

// CommitPolicy decides when a consumer worker commits offsets.
type CommitPolicy string

const (
	// CommitAuto leaves committing to the broker client.
	CommitAuto CommitPolicy = "auto"

	// CommitOnComplete commits after each message is handled without error.
	CommitOnComplete CommitPolicy = "on_complete"
)

// Defaults applied to every Spec before a worker is spawned.
const (
	// DefaultMaxAttempts allows two restarts after the first run.
	DefaultMaxAttempts = 3

	DefaultSleepTime    = 5 * time.Second
	DefaultCommitPolicy = CommitOnComplete
)

// Spec describes one worker instance. It is built at spawn time from the class
// defaults merged with per-instance overrides and is owned by that instance.
//
// Example:
//
//	spec := worker.Spec{
//	    Topic:       "orders",
//	    MaxAttempts: 5,
//	    Settings:    map[string]any{"auto.offset.reset": "latest"},
//	}
type Spec struct {
	// Name is the registered name. The launcher fills it in.
	Name string `mapstructure:"name"`

	// Topic the worker reads from or writes to
	Topic string `mapstructure:"topic"`

	// ConsumerGroup becomes group.id. Instances of one registration share it.
	ConsumerGroup string `mapstructure:"consumer_group"`

	// Settings overlay the client settings of the instance
	Settings map[string]any `mapstructure:"settings"`

	// MaxAttempts bounds how many times the worker runs, the first run included.
	MaxAttempts int `mapstructure:"max_attempts"`

	// CommitPolicy defaults to DefaultCommitPolicy.
	CommitPolicy CommitPolicy `mapstructure:"commit_policy"`

	// SleepTime is the idle wait and the pause between attempts.
	SleepTime time.Duration `mapstructure:"sleep_time"`
}

// Merge returns s overlaid with the non-zero fields of overrides. Settings are merged
// key by key; neither spec is modified.
func (s Spec) Merge(overrides Spec) Spec {
	out := s
	out.Settings = maps.Clone(s.Settings)

	if overrides.Name != "" {
		out.Name = overrides.Name
	}
	if overrides.Topic != "" {
		out.Topic = overrides.Topic
	}
	if overrides.ConsumerGroup != "" {
		out.ConsumerGroup = overrides.ConsumerGroup
	}
	if overrides.MaxAttempts != 0 {
		out.MaxAttempts = overrides.MaxAttempts
	}
	if overrides.CommitPolicy != "" {
		out.CommitPolicy = overrides.CommitPolicy
	}
	if overrides.SleepTime != 0 {
		out.SleepTime = overrides.SleepTime
	}
	if len(overrides.Settings) > 0 {
		if out.Settings == nil {
			out.Settings = make(map[string]any, len(overrides.Settings))
		}
		maps.Copy(out.Settings, overrides.Settings)
	}
	return out
}

// withDefaults fills zero fields from the Default constants.
func (s Spec) withDefaults() Spec {
	if s.MaxAttempts < 1 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.SleepTime <= 0 {
		s.SleepTime = DefaultSleepTime
	}
	if s.CommitPolicy == "" {
		s.CommitPolicy = DefaultCommitPolicy
	}
	return s
}
