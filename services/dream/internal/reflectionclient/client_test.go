package reflectionclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reverie/pkg/domain"
	"reverie/pkg/reveal"
)

func TestFetchSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reflections/r-1" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(domain.ReflectionRecord{
			ID:        "r-1",
			OwnerID:   "user-1",
			Text:      "walked by the river",
			CreatedAt: time.Now().UTC(),
			Enrichment: &domain.Enrichment{
				Primary: domain.EmotionCalm,
				Valence: 0.4,
				Arousal: 0.2,
			},
		})
	}))
	defer srv.Close()

	rec, err := NewClient(srv.URL, "token-1").Fetch(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.ID != "r-1" || !rec.Enriched() {
		t.Fatalf("record = %+v, want enriched r-1", rec)
	}
	if rec.Enrichment.Primary != domain.EmotionCalm {
		t.Fatalf("primary = %q, want calm", rec.Enrichment.Primary)
	}

	_, err = NewClient(srv.URL, "wrong").Fetch(context.Background(), "r-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("fetch with bad token: %v, want 401 APIError", err)
	}
}

func TestClientDrivesPollerToReady(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		rec := domain.ReflectionRecord{ID: "r-1", OwnerID: "user-1", Text: "walked by the river"}
		if n >= 2 {
			rec.Enrichment = &domain.Enrichment{Primary: domain.EmotionJoy, Valence: 0.8, Arousal: 0.5}
		}
		_ = json.NewEncoder(w).Encode(rec)
	}))
	defer srv.Close()

	ready := make(chan domain.ReflectionRecord, 1)
	poller := reveal.NewPoller(NewClient(srv.URL, "token-1"), "r-1", reveal.PollerConfig{
		Interval: 10 * time.Millisecond,
		OnReady:  func(rec domain.ReflectionRecord) { ready <- rec },
	})
	poller.Start(context.Background())
	defer poller.Stop()

	select {
	case rec := <-ready:
		if rec.Enrichment == nil || rec.Enrichment.Primary != domain.EmotionJoy {
			t.Fatalf("ready record = %+v, want joy enrichment", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poller never became ready")
	}
}
