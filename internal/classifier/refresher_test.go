package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/testutil"
)

type stubClient struct {
	err        error
	confidence float64
	delay      time.Duration
	calls      int
}

func (c *stubClient) Confidence(ctx context.Context, _ *model.Proposal) (float64, error) {
	c.calls++
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(c.delay):
		}
	}
	return c.confidence, c.err
}

func TestRefreshReturnsSignal(t *testing.T) {
	client := &stubClient{confidence: 0.85}
	refresher := NewRefresher(client, time.Second)

	confidence, ok := refresher.Refresh(context.Background(), testutil.NewProposal())

	require.True(t, ok)
	assert.InDelta(t, 0.85, confidence, 0.001)
	assert.Equal(t, 1, client.calls)
}

func TestRefreshNilClient(t *testing.T) {
	refresher := NewRefresher(nil, 0)

	confidence, ok := refresher.Refresh(context.Background(), testutil.NewProposal())

	assert.False(t, ok)
	assert.Zero(t, confidence)
}

func TestRefreshTimeoutDegradesToReview(t *testing.T) {
	client := &stubClient{confidence: 0.85, delay: 500 * time.Millisecond}
	refresher := NewRefresher(client, 10*time.Millisecond)

	confidence, ok := refresher.Refresh(context.Background(), testutil.NewProposal())

	assert.False(t, ok)
	assert.Zero(t, confidence)
}

func TestRefreshOutOfRangeConfidence(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
	}{
		{name: "above one", confidence: 1.5},
		{name: "negative", confidence: -0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{confidence: tt.confidence}
			refresher := NewRefresher(client, time.Second)

			confidence, ok := refresher.Refresh(context.Background(), testutil.NewProposal())

			assert.False(t, ok)
			assert.Zero(t, confidence)
		})
	}
}

func TestRefreshBreakerStopsCallingUpstream(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{err: errors.New("upstream unavailable")}
	refresher := NewRefresher(client, time.Second)

	// Each refresh retries once, so three refreshes reach the five
	// consecutive failures that trip the breaker.
	for i := 0; i < 3; i++ {
		_, ok := refresher.Refresh(ctx, testutil.NewProposal())
		require.False(t, ok)
	}
	callsWhenTripped := client.calls

	confidence, ok := refresher.Refresh(ctx, testutil.NewProposal())

	assert.False(t, ok)
	assert.Zero(t, confidence)
	assert.Equal(t, callsWhenTripped, client.calls)
}
