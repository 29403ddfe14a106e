package api

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrInvalidRetryInterval = errors.New("firstRetryIntervalInMilliseconds value must be greater than 0")
	ErrInvalidMaxAttempts   = errors.New("maxNumberOfAttempts value must be at least 1")
)

// RetryOptions defines the retry policy of an activity or sub-orchestration call. The host performs
// the retries; the engine serializes the policy and replays the resulting history.
type RetryOptions struct {
	FirstRetryIntervalInMilliseconds int64   `json:"firstRetryIntervalInMilliseconds"`
	MaxNumberOfAttempts              int     `json:"maxNumberOfAttempts"`
	BackoffCoefficient               float64 `json:"backoffCoefficient,omitempty"`
	MaxRetryIntervalInMilliseconds   int64   `json:"maxRetryIntervalInMilliseconds,omitempty"`
	RetryTimeoutInMilliseconds       int64   `json:"retryTimeoutInMilliseconds,omitempty"`
}

// defaultMaxRetryInterval caps the backoff when no maximum is configured.
const defaultMaxRetryInterval = 365 * 24 * time.Hour

type RetryOption func(*RetryOptions)

// WithBackoffCoefficient sets the multiplier applied to the retry interval after each attempt.
func WithBackoffCoefficient(coefficient float64) RetryOption {
	return func(o *RetryOptions) {
		o.BackoffCoefficient = coefficient
	}
}

// WithMaxRetryInterval caps the interval between two attempts.
func WithMaxRetryInterval(d time.Duration) RetryOption {
	return func(o *RetryOptions) {
		o.MaxRetryIntervalInMilliseconds = d.Milliseconds()
	}
}

// WithRetryTimeout bounds the total time spent retrying.
func WithRetryTimeout(d time.Duration) RetryOption {
	return func(o *RetryOptions) {
		o.RetryTimeoutInMilliseconds = d.Milliseconds()
	}
}

// NewRetryOptions returns a validated retry policy. The first retry interval must be positive
// and at least one attempt is required.
func NewRetryOptions(firstRetryInterval time.Duration, maxNumberOfAttempts int, opts ...RetryOption) (*RetryOptions, error) {
	o := &RetryOptions{
		FirstRetryIntervalInMilliseconds: firstRetryInterval.Milliseconds(),
		MaxNumberOfAttempts:              maxNumberOfAttempts,
	}
	for _, configure := range opts {
		configure(o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the invariants that [NewRetryOptions] enforces. It is useful for options
// decoded from JSON.
func (o *RetryOptions) Validate() error {
	if o.FirstRetryIntervalInMilliseconds <= 0 {
		return ErrInvalidRetryInterval
	}
	if o.MaxNumberOfAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	return nil
}

// NextDelay returns the delay that precedes the given retry (1 for the first retry). The
// computation is deterministic: no jitter is applied.
func (o *RetryOptions) NextDelay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	multiplier := o.BackoffCoefficient
	if multiplier < 1 {
		multiplier = 1
	}
	maxInterval := defaultMaxRetryInterval
	if o.MaxRetryIntervalInMilliseconds > 0 {
		maxInterval = time.Duration(o.MaxRetryIntervalInMilliseconds) * time.Millisecond
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Duration(o.FirstRetryIntervalInMilliseconds) * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxInterval,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var delay time.Duration
	for i := 0; i < retry; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
