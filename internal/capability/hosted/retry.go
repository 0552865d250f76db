package hosted

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"papercast/internal/capability"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 5
)

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("api request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// statusError builds the error for a non-2xx response. Auth rejections are
// tagged with capability.ErrAuth so stages classify them fatal instead of
// transient.
func statusError(code int, body string, retryAfter time.Duration) error {
	err := &httpStatusError{StatusCode: code, Body: strings.TrimSpace(body), RetryAfter: retryAfter}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return fmt.Errorf("%w: %w", capability.ErrAuth, err)
	}
	return err
}

// retryPolicy holds the shared bounded-retry settings used by every hosted
// client.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: defaultRetryAttempts,
		baseDelay:   defaultRetryBaseDelay,
		maxDelay:    defaultRetryMaxDelay,
	}
}

func (p retryPolicy) attempts() int {
	if p.maxAttempts <= 0 {
		return 1
	}
	return p.maxAttempts
}

// run invokes fn until it succeeds, exhausts attempts, or hits a
// non-retryable error.
func (p retryPolicy) run(ctx context.Context, op string, fn func() error) error {
	attempts := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		delay, retry := p.delay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p retryPolicy) delay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return p.cap(statusErr.RetryAfter), true
			}
			return p.backoff(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.backoff(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return p.backoff(attempt), true
	}
	return 0, false
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	base := p.baseDelay
	if base < 0 {
		base = defaultRetryBaseDelay
	}
	if base == 0 {
		return 0
	}
	maxDelay := p.maxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return p.cap(delay)
}

func (p retryPolicy) cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := p.maxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p retryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx == nil {
		return errors.New("retry: nil context")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
