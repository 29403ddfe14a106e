package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NextDelay(t *testing.T) {
	type args struct {
		options RetryOptions
		retry   int
	}
	tests := []struct {
		name string
		args args
		want time.Duration
	}{
		{
			name: "first retry",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 2000,
					MaxNumberOfAttempts:              3,
					BackoffCoefficient:               2,
					MaxRetryIntervalInMilliseconds:   10000,
				},
				retry: 1,
			},
			want: 2 * time.Second,
		},
		{
			name: "second retry",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 2000,
					MaxNumberOfAttempts:              3,
					BackoffCoefficient:               2,
					MaxRetryIntervalInMilliseconds:   10000,
				},
				retry: 2,
			},
			want: 4 * time.Second,
		},
		{
			name: "third retry",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 2000,
					MaxNumberOfAttempts:              3,
					BackoffCoefficient:               2,
					MaxRetryIntervalInMilliseconds:   10000,
				},
				retry: 3,
			},
			want: 8 * time.Second,
		},
		{
			name: "fourth retry is capped",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 2000,
					MaxNumberOfAttempts:              3,
					BackoffCoefficient:               2,
					MaxRetryIntervalInMilliseconds:   10000,
				},
				retry: 4,
			},
			want: 10 * time.Second,
		},
		{
			name: "fourth retry backoff 1",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 2000,
					MaxNumberOfAttempts:              3,
					BackoffCoefficient:               1,
					MaxRetryIntervalInMilliseconds:   10000,
				},
				retry: 4,
			},
			want: 2 * time.Second,
		},
		{
			name: "no coefficient means constant",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 500,
					MaxNumberOfAttempts:              5,
				},
				retry: 3,
			},
			want: 500 * time.Millisecond,
		},
		{
			name: "no maximum",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 1000,
					MaxNumberOfAttempts:              10,
					BackoffCoefficient:               3,
				},
				retry: 5,
			},
			want: 81 * time.Second,
		},
		{
			name: "before the first retry",
			args: args{
				options: RetryOptions{
					FirstRetryIntervalInMilliseconds: 1000,
					MaxNumberOfAttempts:              3,
				},
				retry: 0,
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.args.options.NextDelay(tt.args.retry); got != tt.want {
				t.Errorf("NextDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_NewRetryOptions(t *testing.T) {
	o, err := NewRetryOptions(
		5*time.Second, 4,
		WithBackoffCoefficient(1.5),
		WithMaxRetryInterval(time.Minute),
		WithRetryTimeout(time.Hour),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), o.FirstRetryIntervalInMilliseconds)
	assert.Equal(t, 4, o.MaxNumberOfAttempts)
	assert.Equal(t, 1.5, o.BackoffCoefficient)
	assert.Equal(t, int64(60000), o.MaxRetryIntervalInMilliseconds)
	assert.Equal(t, int64(3600000), o.RetryTimeoutInMilliseconds)

	_, err = NewRetryOptions(0, 3)
	assert.ErrorIs(t, err, ErrInvalidRetryInterval)

	_, err = NewRetryOptions(time.Second, 0)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}
