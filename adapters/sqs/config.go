package sqsqueue

import "time"

// Config controls the SQS adapter behavior.
type Config struct {
	// Required: fully qualified SQS queue URL
	QueueURL string `yaml:"queue_url"`

	// Optional: AWS region; falls back to default chain if empty
	Region string `yaml:"region"`

	// Optional endpoint override, e.g. localstack.
	Endpoint string `yaml:"endpoint"`

	// ReceiveMessage long polling seconds (0..20). A shorter
	// DequeueWithTimeout timeout wins for that call.
	WaitTimeSeconds int `yaml:"wait_time_seconds"`

	// Visibility timeout in seconds for received messages.
	VisibilityTimeout int `yaml:"visibility_timeout"`

	// FIFO mode. The job ID is the message group unless MessageGroupID is set.
	FIFO           bool   `yaml:"fifo"`
	MessageGroupID string `yaml:"message_group_id"`

	// Backoff in seconds when Nack with requeue=true. 0 makes it immediately available.
	RequeueBackoffSeconds int `yaml:"requeue_backoff_seconds"`

	// If true and Nack with requeue=false, drop the message instead of exposing it.
	DropOnNackNoRequeue bool `yaml:"drop_on_nack_no_requeue"`
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		WaitTimeSeconds:   20,
		VisibilityTimeout: 30,
	}
}

func (c Config) withDefaults() Config {
	base := DefaultConfig()
	if c.WaitTimeSeconds <= 0 {
		c.WaitTimeSeconds = base.WaitTimeSeconds
	}
	if c.WaitTimeSeconds > 20 {
		c.WaitTimeSeconds = 20
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = base.VisibilityTimeout
	}
	if c.RequeueBackoffSeconds < 0 {
		c.RequeueBackoffSeconds = 0
	}
	return c
}

// waitSeconds clamps a per-call timeout to the SQS long-poll range.
func (c Config) waitSeconds(timeout time.Duration) int32 {
	wait := c.WaitTimeSeconds
	if timeout > 0 {
		if s := int(timeout / time.Second); s < wait {
			wait = s
		}
	}
	if wait < 0 {
		wait = 0
	}
	if wait > 20 {
		wait = 20
	}
	return int32(wait)
}
