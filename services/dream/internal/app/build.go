package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"reverie/internal/util"
	"reverie/pkg/domain"
)

// BuildResult is the outcome of one construction attempt.
type BuildResult struct {
	Built      bool   `json:"built"`
	ArtifactID string `json:"artifactId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Build runs the idempotent construction pipeline for (userID, date). Each
// step short-circuits: re-check the lock, re-check pending freshness, fetch
// state and the reflection window, invoke the compiler, then persist the
// artifact before the lock. The artifact-first write order means a crash
// between the two writes can never leave a lock with no artifact behind it.
//
// Store failures return reason "error" alongside the error; callers must
// treat that as "try again", not "already built".
func (a *App) Build(ctx context.Context, userID, date string) (BuildResult, error) {
	if strings.TrimSpace(userID) == "" {
		return BuildResult{}, ErrUserIDRequired
	}
	if strings.TrimSpace(date) == "" {
		return BuildResult{}, ErrDateRequired
	}
	if !validDate(date) {
		return BuildResult{}, ErrInvalidDate
	}

	locked, err := a.dreams.HasBuildLock(ctx, userID, date)
	if err != nil {
		return BuildResult{Reason: domain.ReasonError}, err
	}
	if locked {
		return BuildResult{Reason: domain.ReasonLockExists}, nil
	}

	_, exists, err := a.dreams.GetPendingDream(ctx, userID)
	if err != nil {
		return BuildResult{Reason: domain.ReasonError}, err
	}
	if exists {
		return BuildResult{Reason: domain.ReasonPendingExists}, nil
	}

	ids, records, err := a.reflectionWindow(ctx, userID)
	if err != nil {
		return BuildResult{Reason: domain.ReasonError}, err
	}
	if len(ids) == 0 {
		return BuildResult{Reason: domain.ReasonNoReflections}, nil
	}
	if len(records) == 0 {
		return BuildResult{Reason: domain.ReasonFetchInconsistent}, nil
	}

	var prior *domain.DreamState
	state, hasState, err := a.dreams.GetDreamState(ctx, userID)
	if err != nil {
		return BuildResult{Reason: domain.ReasonError}, err
	}
	if hasState {
		prior = &state
	}

	artifact, err := a.compiler.Compile(ctx, userID, records, prior, date)
	if err != nil {
		return BuildResult{Reason: domain.ReasonError}, fmt.Errorf("compile dream: %w", err)
	}
	// A nil artifact is the compiler's content-level refusal. No lock is
	// written, so a later attempt the same day may still succeed.
	if artifact == nil {
		return BuildResult{Reason: domain.ReasonBuildFailed}, nil
	}

	dream := *artifact
	if dream.CreatedAt.IsZero() {
		dream.CreatedAt = a.now()
	}
	dream.ExpiresAt = dream.CreatedAt.Add(a.pendingTTL)

	if err := a.dreams.SavePendingDream(ctx, userID, dream, a.pendingTTL); err != nil {
		return BuildResult{Reason: domain.ReasonError}, fmt.Errorf("store pending dream: %w", err)
	}
	if _, err := a.dreams.AcquireBuildLock(ctx, userID, date, dream.ArtifactID, a.lockTTL); err != nil {
		return BuildResult{Reason: domain.ReasonError}, fmt.Errorf("store build lock: %w", err)
	}
	return BuildResult{Built: true, ArtifactID: dream.ArtifactID}, nil
}

// BatchResult aggregates a batch trigger run for operational visibility.
type BatchResult struct {
	Outcomes map[string]string `json:"outcomes"`
	Counts   map[string]int    `json:"counts"`
}

// BuildForUsers runs the build pipeline for each user with bounded
// concurrency. Per-user outcomes are "built", "skipped:<reason>", or
// "error"; errors never abort the batch.
func (a *App) BuildForUsers(ctx context.Context, userIDs []string, date string) BatchResult {
	result := BatchResult{
		Outcomes: make(map[string]string, len(userIDs)),
		Counts:   make(map[string]int),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.buildLimit)
	for _, userID := range userIDs {
		uid := userID
		g.Go(func() error {
			outcome := a.buildOutcome(gctx, uid, date)
			mu.Lock()
			result.Outcomes[uid] = outcome
			result.Counts[outcome]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	util.LoggerFromContext(ctx).Info("dream build batch finished",
		"date", date, "users", len(userIDs), "counts", result.Counts)
	return result
}

func (a *App) buildOutcome(ctx context.Context, userID, date string) string {
	res, err := a.Build(ctx, userID, date)
	switch {
	case err != nil:
		util.LoggerFromContext(ctx).Error("dream build failed", "user_id", userID, "date", date, "err", err)
		return "error"
	case res.Built:
		return "built"
	default:
		return "skipped:" + res.Reason
	}
}
