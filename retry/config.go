// Package retry wraps calls to completion APIs with two retry layers: a
// transport layer that backs off on transient failures, and a logical layer
// that re-runs the whole call-and-validate cycle when the response has the
// wrong shape.
package retry

import "time"

// Config controls a single retry layer. The zero value performs one attempt
// with no delay.
type Config struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay"`
	Jitter     time.Duration `json:"jitter" yaml:"jitter"`
}

// TransportDefaults returns the defaults applied around each API call.
func TransportDefaults() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Jitter:     200 * time.Millisecond,
	}
}

// LogicalDefaults returns the defaults applied around the call-and-validate cycle.
func LogicalDefaults() Config {
	return Config{MaxRetries: 1}
}

// NotifyFunc observes a retry before its backoff sleep. attempt is the
// 1-indexed retry number.
type NotifyFunc func(attempt int, err error, delay time.Duration)

// Option overrides part of a layer's defaults.
type Option func(*settings)

type settings struct {
	cfg    Config
	notify NotifyFunc
}

func newSettings(base Config, opts []Option) settings {
	s := settings{cfg: base}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.cfg.MaxRetries = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(s *settings) { s.cfg.BaseDelay = d }
}

// WithMaxDelay caps the exponential part of the delay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) { s.cfg.MaxDelay = d }
}

// WithJitter sets the upper bound of the random delay added to each backoff.
func WithJitter(d time.Duration) Option {
	return func(s *settings) { s.cfg.Jitter = d }
}

// WithConfig replaces the whole layer configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithNotify registers a callback invoked before every backoff sleep.
func WithNotify(fn NotifyFunc) Option {
	return func(s *settings) { s.notify = fn }
}

// Resolve returns the configuration produced by applying opts over base.
func Resolve(base Config, opts ...Option) Config {
	return newSettings(base, opts).cfg
}
