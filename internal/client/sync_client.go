// Package client provides the HTTP transport for the sync protocol.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/models"
)

// SyncClient communicates with the reconciliation endpoints of the Fintrack
// API. The bearer token is an opaque credential supplied by the caller.
type SyncClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSyncClient creates a new sync API client.
func NewSyncClient(baseURL, token string, httpClient *http.Client) *SyncClient {
	return &SyncClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Pull fetches all remote changes for the user since lastPulledAt, plus the
// server timestamp that becomes the next checkpoint.
func (c *SyncClient) Pull(ctx context.Context, userID string, lastPulledAt int64) (*models.PullResponse, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("last_pulled_at", strconv.FormatInt(lastPulledAt, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/sync/pull?"+q.Encode(), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrap(apperrors.ErrNetwork,
			fmt.Errorf("pull: unexpected status %d", resp.StatusCode))
	}

	var result models.PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork,
			fmt.Errorf("decoding pull response: %w", err))
	}
	return &result, nil
}

// Push transmits the local delta and returns the number of records the
// server processed. lastPulledAt rides along so the server can detect stale
// pushes if it chooses to.
func (c *SyncClient) Push(ctx context.Context, userID string, lastPulledAt int64, changes models.ChangeSet) (int, error) {
	body, err := json.Marshal(models.PushRequest{Changes: changes})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrNetwork, fmt.Errorf("marshaling push request: %w", err))
	}

	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("last_pulled_at", strconv.FormatInt(lastPulledAt, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/sync/push?"+q.Encode(), strings.NewReader(string(body)))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.Wrap(apperrors.ErrNetwork,
			fmt.Errorf("push: unexpected status %d", resp.StatusCode))
	}

	var result models.PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrNetwork,
			fmt.Errorf("decoding push response: %w", err))
	}
	return result.Pushed, nil
}

// Ping probes the server health endpoint. The sync daemon uses it to detect
// connectivity transitions.
func (c *SyncClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Wrap(apperrors.ErrNetwork,
			fmt.Errorf("health: unexpected status %d", resp.StatusCode))
	}
	return nil
}
