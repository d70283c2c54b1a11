package writequeue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config groups the executor tunables. Values are taken from environment
// variables with the prefix "WQ_", e.g. WQ_SHARDS=8 WQ_QUEUE_SIZE=256.
type Config struct {
	Shards         int           `envconfig:"SHARDS"          default:"4"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"128"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`

	// ErrorHandler is called synchronously after a job is abandoned (either
	// irrecoverable or out of attempts). Leave nil to ignore failures.
	ErrorHandler func(error) `envconfig:"-"`

	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"8"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"100ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"20s"`
}

// LoadConfig populates Config from environment variables (prefix WQ_).
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("WQ", &c)
}
