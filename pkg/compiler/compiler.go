package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"reverie/pkg/domain"
)

// Compiler turns a user's reflection window into a dream artifact. The
// narrative generation itself is an external capability; this interface is
// the boundary the build pipeline depends on.
//
// A nil artifact with a nil error is a content-level policy refusal (not
// enough emotional signal, compiler-internal rate limiting) and is not an
// error condition.
type Compiler interface {
	Compile(ctx context.Context, userID string, reflections []domain.ReflectionRecord, prior *domain.DreamState, date string) (*domain.PendingDream, error)
}

// HTTPCompiler calls the external narrative service.
type HTTPCompiler struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a compiler service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewHTTPCompiler constructs a client for the narrative service.
func NewHTTPCompiler(baseURL string) *HTTPCompiler {
	return &HTTPCompiler{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type compileRequest struct {
	UserID      string                    `json:"userId"`
	Date        string                    `json:"date"`
	Reflections []domain.ReflectionRecord `json:"reflections"`
	Prior       *domain.DreamState        `json:"prior,omitempty"`
}

type compileResponse struct {
	Eligible      bool             `json:"eligible"`
	Kind          domain.DreamKind `json:"kind"`
	Beats         []domain.Beat    `json:"beats"`
	UsedMomentIDs []string         `json:"usedMomentIds"`
}

// Compile requests a narrative from the external service. The service may
// answer eligible=false, which maps to the nil-artifact policy refusal.
func (c *HTTPCompiler) Compile(ctx context.Context, userID string, reflections []domain.ReflectionRecord, prior *domain.DreamState, date string) (*domain.PendingDream, error) {
	body, err := json.Marshal(compileRequest{
		UserID:      userID,
		Date:        date,
		Reflections: reflections,
		Prior:       prior,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal compile request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compile", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
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
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	var out compileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode compile response: %w", err)
	}
	if !out.Eligible || len(out.Beats) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	return &domain.PendingDream{
		ArtifactID:    uuid.NewString(),
		Kind:          out.Kind,
		Beats:         out.Beats,
		UsedMomentIDs: out.UsedMomentIDs,
		CreatedAt:     now,
	}, nil
}
