package model

import (
	"fmt"
	"time"
)

// DeliveryMode selects how the producer observes acknowledgments.
type DeliveryMode string

const (
	// DeliverySync blocks every send until the broker acknowledges it.
	DeliverySync DeliveryMode = "sync"
	// DeliveryAsync pipelines sends and observes acknowledgments via a
	// completion callback.
	DeliveryAsync DeliveryMode = "async"
)

// TestConfig is the immutable description of one benchmark load profile.
// The same TestConfig is reused for every platform in a comparison run.
type TestConfig struct {
	// Duration of the load window
	Duration time.Duration `json:"duration"`
	// Target aggregate message rate across all producer threads (msg/s)
	MessageRate int `json:"message_rate"`
	// Size of each message envelope in bytes, including the envelope header
	MessageSize int `json:"message_size"`
	// Number of independent producer sender threads
	ProducerThreads int `json:"producer_threads"`
	// Number of consumer workers reading back the stream
	Consumers int `json:"consumers"`
	// Delivery mode (sync or async)
	Mode DeliveryMode `json:"mode"`
	// Optional hard cap on total messages; 0 means duration-bounded only
	MessageLimit int64 `json:"message_limit,omitempty"`
}

// EnvelopeOverhead is the fixed number of bytes the benchmark envelope
// header occupies inside each message. Defined here so config validation
// can reject sizes too small to carry it.
const EnvelopeOverhead = 24

// Validate checks the configuration invariants before a run starts.
func (c TestConfig) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	if c.MessageRate <= 0 {
		return fmt.Errorf("message rate must be positive, got %d", c.MessageRate)
	}
	if c.MessageSize <= 0 {
		return fmt.Errorf("message size must be positive, got %d", c.MessageSize)
	}
	if c.MessageSize < EnvelopeOverhead {
		return fmt.Errorf("message size %d cannot hold the %d-byte envelope header", c.MessageSize, EnvelopeOverhead)
	}
	if c.ProducerThreads < 1 {
		return fmt.Errorf("producer threads must be >= 1, got %d", c.ProducerThreads)
	}
	if c.Consumers < 1 {
		return fmt.Errorf("consumers must be >= 1, got %d", c.Consumers)
	}
	switch c.Mode {
	case DeliverySync, DeliveryAsync:
	default:
		return fmt.Errorf("unknown delivery mode %q", c.Mode)
	}
	return nil
}

// SameShape reports whether two configurations describe comparable runs.
// Results produced under configurations of different shape must not be
// compared against each other.
func (c TestConfig) SameShape(other TestConfig) bool {
	return c.Duration == other.Duration &&
		c.MessageRate == other.MessageRate &&
		c.MessageSize == other.MessageSize &&
		c.ProducerThreads == other.ProducerThreads &&
		c.Consumers == other.Consumers &&
		c.Mode == other.Mode &&
		c.MessageLimit == other.MessageLimit
}

// Presets mirrors the original tool's predefined load profiles.
var Presets = map[string]TestConfig{
	"light": {
		Duration:        60 * time.Second,
		MessageRate:     100,
		MessageSize:     1024,
		ProducerThreads: 1,
		Consumers:       1,
		Mode:            DeliverySync,
	},
	"medium": {
		Duration:        120 * time.Second,
		MessageRate:     1000,
		MessageSize:     2048,
		ProducerThreads: 2,
		Consumers:       2,
		Mode:            DeliverySync,
	},
	"heavy": {
		Duration:        180 * time.Second,
		MessageRate:     5000,
		MessageSize:     4096,
		ProducerThreads: 4,
		Consumers:       4,
		Mode:            DeliveryAsync,
	},
}

// Preset returns the named load profile.
func Preset(name string) (TestConfig, error) {
	cfg, ok := Presets[name]
	if !ok {
		return TestConfig{}, fmt.Errorf("unknown test preset %q", name)
	}
	return cfg, nil
}
