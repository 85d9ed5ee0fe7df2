package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nordbooks/autopost/internal/common"
	"github.com/nordbooks/autopost/internal/model"
)

// HTTPClient queries a classifier service over HTTP. The service accepts a
// proposal as JSON and answers with a bare confidence value.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient creates a classifier client for the given endpoint.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type confidenceResponse struct {
	Confidence float64 `json:"confidence"`
}

// Confidence asks the classifier to re-score the proposal. The context
// carries the caller's deadline.
func (c *HTTPClient) Confidence(ctx context.Context, proposal *model.Proposal) (float64, error) {
	body, err := json.Marshal(proposal)
	if err != nil {
		return 0, fmt.Errorf("failed to encode proposal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/confidence", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrClassifierUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", common.ErrClassifierUnavailable, resp.StatusCode)
	}

	var parsed confidenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	return parsed.Confidence, nil
}
