package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrorType is the category of a failed upstream call.
type ErrorType string

const (
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeTemporary ErrorType = "temporary"
	ErrorTypePermanent ErrorType = "permanent"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// RetryConfig defines retry behavior for upstream calls.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the first call (0 = no retries)
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Schedules replaces exponential backoff for an error type; the last
	// entry repeats once the schedule runs out
	Schedules map[ErrorType][]time.Duration

	// Jitter spreads each delay by up to +/- this fraction
	Jitter float64

	Logger *zap.SugaredLogger
}

// DefaultRetryConfig returns the retry configuration for the backend client.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxRetries,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.1,
		Schedules: map[ErrorType][]time.Duration{
			ErrorTypeRateLimit: {5 * time.Second, 15 * time.Second},
		},
	}
}

// ClassifyError determines the error type for retry logic.
func ClassifyError(err error) ErrorType {
	switch {
	case err == nil:
		return ErrorTypeUnknown
	case errors.Is(err, context.Canceled):
		return ErrorTypePermanent
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.Code)
	}
	return classifyTransport(err)
}

func classifyStatus(code int) ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusRequestTimeout,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case code >= 400 && code < 500:
		return ErrorTypePermanent
	default:
		return ErrorTypeTemporary
	}
}

func classifyTransport(err error) ErrorType {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return ErrorTypeNetwork
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"):
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// ShouldRetry determines if an error is retryable
func ShouldRetry(err error) bool {
	return ClassifyError(err) != ErrorTypePermanent
}

// ExecuteWithRetry runs fn until it succeeds, fails permanently, the attempts
// run out or ctx is done. fn must be idempotent. A Retry-After sent by the
// backend takes precedence over the computed backoff.
func ExecuteWithRetry(ctx context.Context, fn func() error, config RetryConfig) error {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Debugw("Upstream call succeeded after retries", "retries", attempt)
			}
			return nil
		}

		kind := ClassifyError(err)
		if kind == ErrorTypePermanent {
			return err
		}
		if attempt >= config.MaxAttempts {
			return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, err)
		}

		delay := config.delay(attempt, kind, err)
		logger.Infow("Retry scheduled",
			"attempt", attempt+1,
			"max_attempts", config.MaxAttempts,
			"error_type", kind,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context done during retry delay: %w", err)
		}
	}
}

func (c RetryConfig) delay(attempt int, kind ErrorType, err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return c.clamp(statusErr.RetryAfter)
	}

	var d time.Duration
	if schedule := c.Schedules[kind]; len(schedule) > 0 {
		d = schedule[min(attempt, len(schedule)-1)]
	} else {
		d = c.BaseDelay << uint(attempt)
	}

	if c.Jitter > 0 {
		spread := float64(d) * c.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d <= 0 {
		d = c.BaseDelay
	}
	return c.clamp(d)
}

func (c RetryConfig) clamp(d time.Duration) time.Duration {
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
