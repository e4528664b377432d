package store

import (
	"context"
	"errors"
	"time"

	"reverie/pkg/domain"
)

// ErrEnrichmentExists indicates a second enrichment write for a reflection.
// Enrichment is set exactly once; later writes are rejected.
var ErrEnrichmentExists = errors.New("reflection already enriched")

// DreamStore persists pending dreams, per-user dream state, and the
// per-(user,date) build locks. TTL-bearing keys degrade to "absent" after
// expiry; readers also re-check the artifact's explicit ExpiresAt so stale
// artifacts never reach delivery even if the native TTL lags.
type DreamStore interface {
	// GetPendingDream returns the user's pending artifact. An artifact past
	// its explicit expiry is reported absent and may be deleted best-effort.
	GetPendingDream(ctx context.Context, userID string) (domain.PendingDream, bool, error)
	SavePendingDream(ctx context.Context, userID string, dream domain.PendingDream, ttl time.Duration) error
	DeletePendingDream(ctx context.Context, userID string) error

	GetDreamState(ctx context.Context, userID string) (domain.DreamState, bool, error)
	SaveDreamState(ctx context.Context, userID string, state domain.DreamState) error

	// AcquireBuildLock atomically creates the (user, date) lock with value
	// artifactID. Returns false when the lock already exists.
	AcquireBuildLock(ctx context.Context, userID, date, artifactID string, ttl time.Duration) (bool, error)
	HasBuildLock(ctx context.Context, userID, date string) (bool, error)
}

// ReflectionArchive is the per-user time-indexed store of reflections.
type ReflectionArchive interface {
	SaveReflection(ctx context.Context, rec domain.ReflectionRecord) error
	GetReflection(ctx context.Context, id string) (domain.ReflectionRecord, bool, error)
	// GetReflections resolves ids to records; missing ids are skipped, so the
	// result may be shorter than the input. Callers detect the all-missing
	// case as an archive inconsistency.
	GetReflections(ctx context.Context, ids []string) ([]domain.ReflectionRecord, error)
	// ListReflectionIDs returns ids for the user with creation time in
	// [from, to], newest first.
	ListReflectionIDs(ctx context.Context, userID string, from, to time.Time) ([]string, error)
	// SetEnrichment attaches the analysis result exactly once.
	SetEnrichment(ctx context.Context, id string, e domain.Enrichment) error
}
