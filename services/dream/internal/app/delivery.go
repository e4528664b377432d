package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reverie/internal/util"
	"reverie/pkg/domain"
)

// DeliveryDecision routes a sign-in to the dream or the ordinary reflection
// flow. Dream is set only when Route is "dream".
type DeliveryDecision struct {
	Route  string               `json:"route"`
	Reason string               `json:"reason,omitempty"`
	Dream  *domain.PendingDream `json:"dream,omitempty"`
}

// DecideDelivery applies the eligibility of the stored artifact and the
// seeded admission decider. On any failure it falls back to the reflection
// flow rather than blocking the user: the dream feature is never allowed to
// gate journaling.
func (a *App) DecideDelivery(ctx context.Context, userID string) DeliveryDecision {
	if strings.TrimSpace(userID) == "" {
		return DeliveryDecision{Route: domain.RouteFallback, Reason: domain.ReasonGuest}
	}

	dream, ok, err := a.dreams.GetPendingDream(ctx, userID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("delivery decision store failure", "user_id", userID, "err", err)
		return DeliveryDecision{Route: domain.RouteFallback, Reason: domain.ReasonError}
	}
	if !ok {
		return DeliveryDecision{Route: domain.RouteFallback, Reason: domain.ReasonNoPending}
	}
	// Stores already filter expired artifacts; re-check here so a store
	// implementation without that filter still cannot deliver a stale dream.
	if dream.Expired(a.now()) {
		return DeliveryDecision{Route: domain.RouteFallback, Reason: domain.ReasonExpired}
	}
	if !Admit(userID, dream.ArtifactID) {
		return DeliveryDecision{Route: domain.RouteFallback, Reason: domain.ReasonNotAdmitted}
	}
	return DeliveryDecision{Route: domain.RouteDream, Reason: domain.ReasonAdmitted, Dream: &dream}
}

// Complete marks a delivered dream consumed, whether viewed fully or skipped.
// It writes the rolling DreamState, archives the script best-effort, and
// deletes the pending artifact. skippedAt, when set, records an early skip
// for telemetry.
func (a *App) Complete(ctx context.Context, userID, artifactID string, skippedAt *time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDRequired
	}
	if strings.TrimSpace(artifactID) == "" {
		return ErrArtifactNotFound
	}

	dream, ok, err := a.dreams.GetPendingDream(ctx, userID)
	if err != nil {
		return err
	}
	if !ok || dream.ArtifactID != artifactID {
		return ErrArtifactNotFound
	}

	state := domain.DreamState{
		LastDreamAt:   a.now(),
		LastKind:      dream.Kind,
		UsedMomentIDs: dream.UsedMomentIDs,
	}
	if key := a.archiveScript(ctx, userID, dream, skippedAt); key != "" {
		state.ScriptArchiveKey = key
	}
	if err := a.dreams.SaveDreamState(ctx, userID, state); err != nil {
		return fmt.Errorf("store dream state: %w", err)
	}
	return a.dreams.DeletePendingDream(ctx, userID)
}

type archivedScript struct {
	Dream       domain.PendingDream `json:"dream"`
	CompletedAt time.Time           `json:"completedAt"`
	SkippedAt   *time.Time          `json:"skippedAt,omitempty"`
}

// archiveScript writes the completed script to object storage for history.
// Failures are logged and swallowed; telemetry never gates completion.
func (a *App) archiveScript(ctx context.Context, userID string, dream domain.PendingDream, skippedAt *time.Time) string {
	if a.scripts == nil {
		return ""
	}
	payload, err := json.Marshal(archivedScript{
		Dream:       dream,
		CompletedAt: a.now(),
		SkippedAt:   skippedAt,
	})
	if err != nil {
		util.LoggerFromContext(ctx).Warn("marshal dream script archive", "user_id", userID, "err", err)
		return ""
	}
	key := fmt.Sprintf("dreams/%s/%s.json", userID, dream.ArtifactID)
	if err := a.scripts.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		util.LoggerFromContext(ctx).Warn("archive dream script", "user_id", userID, "artifact_id", dream.ArtifactID, "err", err)
		return ""
	}
	return key
}
