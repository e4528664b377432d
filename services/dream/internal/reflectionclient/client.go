package reflectionclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"reverie/pkg/domain"
)

// Client polls the dream service's reflection endpoint over HTTP. It
// satisfies the poller's Fetcher interface.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents a dream service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a reflection poll client using the caller's bearer
// token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Fetch loads one reflection by id.
func (c *Client) Fetch(ctx context.Context, reflectionID string) (domain.ReflectionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reflections/"+reflectionID, nil)
	if err != nil {
		return domain.ReflectionRecord{}, err
	}
	if strings.TrimSpace(c.token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ReflectionRecord{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return domain.ReflectionRecord{}, &APIError{Status: resp.StatusCode, Message: msg}
	}
	var rec domain.ReflectionRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return domain.ReflectionRecord{}, err
	}
	return rec, nil
}
