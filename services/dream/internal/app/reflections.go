package app

import (
	"context"
	"strings"

	"reverie/pkg/domain"
)

// Reflection loads a single reflection for its owner. Clients poll this to
// observe asynchronous enrichment, so a record whose Enrichment is still nil
// is a normal answer, not an error.
func (a *App) Reflection(ctx context.Context, userID, id string) (domain.ReflectionRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.ReflectionRecord{}, ErrUserIDRequired
	}
	rec, ok, err := a.reflections.GetReflection(ctx, id)
	if err != nil {
		return domain.ReflectionRecord{}, err
	}
	if !ok || rec.OwnerID != userID {
		return domain.ReflectionRecord{}, ErrReflectionNotFound
	}
	return rec, nil
}
