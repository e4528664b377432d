package app

import (
	"context"
	"strings"

	"reverie/pkg/domain"
)

// Decision is the eligibility gate's outcome.
type Decision struct {
	Build  bool   `json:"build"`
	Reason string `json:"reason,omitempty"`
}

// ShouldBuild decides whether a dream should be constructed for the user on
// the given calendar date. Refusals are normal outcomes carried in the
// reason; the error return is reserved for upstream (store) failures.
func (a *App) ShouldBuild(ctx context.Context, userID, date string) (Decision, error) {
	if strings.TrimSpace(userID) == "" {
		return Decision{}, ErrUserIDRequired
	}
	if strings.TrimSpace(date) == "" {
		return Decision{}, ErrDateRequired
	}
	if !validDate(date) {
		return Decision{}, ErrInvalidDate
	}

	locked, err := a.dreams.HasBuildLock(ctx, userID, date)
	if err != nil {
		return Decision{}, err
	}
	if locked {
		return Decision{Reason: domain.ReasonLockExists}, nil
	}

	_, exists, err := a.dreams.GetPendingDream(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if exists {
		return Decision{Reason: domain.ReasonPendingExists}, nil
	}

	ids, records, err := a.reflectionWindow(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if len(ids) == 0 {
		return Decision{Reason: domain.ReasonNoReflections}, nil
	}
	// Index entries exist but none of the fetched records resolved: a partial
	// archive read failure, distinct from having no reflections at all.
	if len(records) == 0 {
		return Decision{Reason: domain.ReasonFetchInconsistent}, nil
	}
	return Decision{Build: true}, nil
}

// reflectionWindow fetches the trailing window's ids and resolved records.
func (a *App) reflectionWindow(ctx context.Context, userID string) ([]string, []domain.ReflectionRecord, error) {
	to := a.now()
	from := to.Add(-a.window)
	ids, err := a.reflections.ListReflectionIDs(ctx, userID, from, to)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}
	records, err := a.reflections.GetReflections(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return ids, records, nil
}
