package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

// RetryConfig configures the in-call retries of one GitHub API request. The
// alert activity's own retry policy wraps these, so the budget stays small
// enough to finish inside the success alert timeout.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Default: 2
	MaxRetries int

	// InitialBackoff is the initial backoff duration.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including rate limit waits.
	// Default: 10 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration for GitHub API calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()

	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

func (c *RetryConfig) backOff() *rateLimitBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialBackoff
	exp.MaxInterval = c.MaxBackoff
	exp.Multiplier = c.BackoffMultiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &rateLimitBackOff{BackOff: exp}
}

// rateLimitBackOff replaces the next exponential wait with the rate limit
// reset wait when the last response was rate limited.
type rateLimitBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *rateLimitBackOff) NextBackOff() time.Duration {
	wait := b.BackOff.NextBackOff()
	if wait != backoff.Stop && b.next > 0 {
		wait = b.next
	}
	b.next = 0
	return wait
}

// retryGitHubOperation retries a GitHub API call with exponential backoff,
// waiting for the rate limit reset when GitHub reports one.
func retryGitHubOperation(ctx context.Context, cfg *RetryConfig, logger *logging.Logger, operation func() (*github.Response, error)) (*github.Response, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}

	limited := cfg.backOff()
	b := backoff.WithContext(backoff.WithMaxRetries(limited, uint64(cfg.MaxRetries)), ctx)

	attempts := 0
	startTime := time.Now()
	var lastResp *github.Response

	op := func() (*github.Response, error) {
		attempts++
		resp, err := operation()
		lastResp = resp
		if err == nil {
			return resp, nil
		}
		if !isGitHubRetryableError(err, resp) {
			logger.Debug(ctx, "GitHub API error is not retryable",
				zap.Error(err),
				zap.Int("status_code", getStatusCode(resp)),
			)
			return resp, backoff.Permanent(err)
		}
		if isRateLimitError(resp) {
			limited.next = getRateLimitBackoff(resp, cfg.MaxBackoff)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Info(ctx, "Retrying GitHub API operation after transient error",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", cfg.MaxRetries+1),
			zap.Error(err),
			zap.Int("status_code", getStatusCode(lastResp)),
			zap.Duration("backoff", wait),
		)
	}

	resp, err := backoff.RetryNotifyWithData(op, b, notify)
	switch {
	case err == nil:
		if attempts > 1 {
			logger.Info(ctx, "GitHub API operation recovered after retries",
				zap.Int("attempts", attempts),
				zap.Duration("total_time", time.Since(startTime)),
			)
		}
		return resp, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
	case !isGitHubRetryableError(err, lastResp):
		return lastResp, err
	}

	logger.Warn(ctx, "GitHub API operation failed after all retries exhausted",
		zap.Int("total_attempts", attempts),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(err),
		zap.Int("status_code", getStatusCode(lastResp)),
	)
	return lastResp, fmt.Errorf("GitHub API operation failed after %d retries: %w", cfg.MaxRetries, err)
}

// isGitHubRetryableError checks if a GitHub API error is retryable.
func isGitHubRetryableError(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}

	if resp != nil && resp.Response != nil {
		switch code := resp.Response.StatusCode; code {
		case http.StatusTooManyRequests:
			return true
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity:
			return false
		case http.StatusForbidden:
			// Secondary rate limits come back as 403 with rate info.
			return resp.Rate.Limit > 0
		default:
			return code >= 500 && code < 600
		}
	}

	// No response: network errors and timeouts.
	return true
}

// isRateLimitError checks if the response indicates a rate limit error.
func isRateLimitError(resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	if resp.Response.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.Response.StatusCode == http.StatusForbidden && resp.Rate.Limit > 0
}

// getRateLimitBackoff returns the time until the rate limit resets, plus one
// second, capped at maxBackoff.
func getRateLimitBackoff(resp *github.Response, maxBackoff time.Duration) time.Duration {
	if resp == nil || (resp.Rate.Limit == 0 && resp.Rate.Remaining == 0) {
		return min(time.Minute, maxBackoff)
	}

	backoff := time.Until(resp.Rate.Reset.Time) + time.Second
	if backoff < 0 {
		backoff = time.Second
	}
	return min(backoff, maxBackoff)
}

// getStatusCode safely extracts the HTTP status code from a GitHub response.
func getStatusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.Response.StatusCode
	}
	return 0
}
