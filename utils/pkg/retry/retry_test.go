package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type httpError struct {
	statusCode int
}

func (e *httpError) Error() string   { return http.StatusText(e.statusCode) }
func (e *httpError) StatusCode() int { return e.statusCode }

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestFeeshare_Retry_DefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.BaseBackoff)
	require.Equal(t, 2*time.Second, cfg.MaxBackoff)
}

func TestFeeshare_Retry_Do(t *testing.T) {
	t.Parallel()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("429 Too Many Requests")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("exhausts attempts and wraps last error", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		original := errors.New("connection reset by peer")
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			return original
		})
		require.ErrorIs(t, err, original)
		require.Equal(t, 3, attempts)
	})

	t.Run("does not retry semantic errors", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		original := errors.New("invalid param: WrongSize")
		err := Do(context.Background(), fastConfig(3), func() error {
			attempts++
			return original
		})
		require.Equal(t, original, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := Do(ctx, Config{MaxAttempts: 5, BaseBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("connection reset")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 2, attempts)
	})
}

func TestFeeshare_Retry_DoValue(t *testing.T) {
	t.Parallel()
	attempts := 0
	v, err := DoValue(context.Background(), fastConfig(3), func() (uint64, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("node is behind by 42 slots")
		}
		return 5_000, nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), v)
	require.Equal(t, 2, attempts)
}

func TestFeeshare_Retry_IsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "net timeout", err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}, want: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), want: true},
		{name: "rate limited", err: errors.New("rate limit exceeded"), want: true},
		{name: "node behind", err: errors.New("Node is behind by 120 slots"), want: true},
		{name: "429 status", err: &httpError{statusCode: http.StatusTooManyRequests}, want: true},
		{name: "503 status", err: &httpError{statusCode: http.StatusServiceUnavailable}, want: true},
		{name: "400 status", err: &httpError{statusCode: http.StatusBadRequest}, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "insufficient funds", err: errors.New("Attempt to debit an account but found no record of a prior credit."), want: false},
		{name: "account not found", err: errors.New("not found"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestFeeshare_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		attempt int
		minExp  time.Duration
		maxExp  time.Duration
	}{
		{name: "first retry", base: 250 * time.Millisecond, max: 2 * time.Second, attempt: 1, minExp: 250 * time.Millisecond, maxExp: 500 * time.Millisecond},
		{name: "second retry", base: 250 * time.Millisecond, max: 2 * time.Second, attempt: 2, minExp: 500 * time.Millisecond, maxExp: time.Second},
		{name: "capped", base: 250 * time.Millisecond, max: 2 * time.Second, attempt: 5, minExp: time.Second, maxExp: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 50 {
				got := calculateBackoff(tt.base, tt.max, tt.attempt)
				require.GreaterOrEqual(t, got, tt.minExp)
				require.LessOrEqual(t, got, tt.maxExp)
			}
		})
	}
}
