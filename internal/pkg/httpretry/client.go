// Package httpretry wraps an HTTP client with exponential backoff and
// full jitter, so every outbound store call and the Brevo provider's HTTP
// calls share one retry policy. The SES adapter goes through the AWS SDK
// client instead.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPDoer is the request-execution contract both *http.Client and
// *RetryClient satisfy, so callers can take either.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries transient failures: 429/500/502/503/504 responses
// and network errors. Client errors (4xx other than 429) and context
// cancellation are never retried.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *logrus.Entry
}

// NewRetryClient wraps client with the shared retry policy. A nil client
// selects a default http.Client with a 30s timeout; maxRetries <= 0
// selects the default of 3 retries after the initial attempt.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Do executes the request, retrying retryable failures up to maxRetries
// times. The final attempt's response is returned as-is, error status and
// all, so the caller can inspect the body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, err
			}
			if !rc.waitBeforeRetry(req, attempt) {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain so the underlying connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// rewindBody resets the request body ahead of a retry, when the request
// carries one.
func rewindBody(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: reset request body: %w", err)
	}
	req.Body = body
	return nil
}

// waitBeforeRetry sleeps the jittered backoff for attempt, returning false
// if the request's context ended first.
func (rc *RetryClient) waitBeforeRetry(req *http.Request, attempt int) bool {
	delay := rc.backoff(attempt)
	rc.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"max":     rc.maxRetries,
		"method":  req.Method,
		"host":    req.URL.Host,
		"delay":   delay.String(),
	}).Warn("retrying http request")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-req.Context().Done():
		return false
	}
}

// backoff returns the delay before the given attempt: full jitter over
// baseDelay * 2^(attempt-1), capped at maxDelay, floored at 100ms so a
// zero draw cannot busy-loop.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	exp := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(rc.maxDelay) {
		exp = float64(rc.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
