// Package classifier wraps the upstream classifier service used to refresh
// a proposal's confidence signal. Every failure mode degrades toward human
// review: timeouts, open breaker and transport errors all yield a zero
// signal, never a cached high value.
package classifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

// DefaultTimeout bounds a single classifier call.
const DefaultTimeout = 3 * time.Second

// Refresher guards classifier calls with a bounded timeout and a circuit
// breaker so a degraded upstream cannot stall the posting pipeline.
type Refresher struct {
	client  service.ClassifierClient
	breaker *gobreaker.CircuitBreaker[float64]
	timeout time.Duration
}

// NewRefresher wraps a classifier client. A nil client yields a refresher
// that always reports the signal as unavailable.
func NewRefresher(client service.ClassifierClient, timeout time.Duration) *Refresher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	settings := gobreaker.Settings{
		Name: "classifier",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	}

	return &Refresher{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[float64](settings),
		timeout: timeout,
	}
}

// Refresh re-queries the classifier for a confidence signal. The second
// return value reports whether a usable signal was obtained; on any failure
// the caller must treat the classifier factor as 0.
func (r *Refresher) Refresh(ctx context.Context, proposal *model.Proposal) (float64, bool) {
	if r.client == nil {
		return 0, false
	}

	var confidence float64
	err := common.WithRetry(ctx, func() error {
		var callErr error
		confidence, callErr = r.breaker.Execute(func() (float64, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			return r.client.Confidence(callCtx, proposal)
		})
		// An open breaker will not recover within the retry window.
		if errors.Is(callErr, gobreaker.ErrOpenState) || errors.Is(callErr, gobreaker.ErrTooManyRequests) {
			return &common.RetryableError{Err: callErr, Retryable: false}
		}
		return callErr
	}, common.RetryOptions{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond})
	if err != nil {
		slog.Warn("Classifier refresh failed, degrading to review",
			"proposal", proposal.ID,
			"error", err)
		return 0, false
	}
	if confidence < 0 || confidence > 1 {
		slog.Warn("Classifier returned out-of-range confidence",
			"proposal", proposal.ID,
			"confidence", confidence)
		return 0, false
	}
	return confidence, true
}
