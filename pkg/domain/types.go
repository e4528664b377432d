package domain

import "time"

// EmotionCategory is a primary or secondary classification produced by the
// external enrichment process.
type EmotionCategory string

const (
	EmotionJoy      EmotionCategory = "joy"
	EmotionCalm     EmotionCategory = "calm"
	EmotionSadness  EmotionCategory = "sadness"
	EmotionAnger    EmotionCategory = "anger"
	EmotionFear     EmotionCategory = "fear"
	EmotionSurprise EmotionCategory = "surprise"
	EmotionLonging  EmotionCategory = "longing"
	EmotionWonder   EmotionCategory = "wonder"
)

// ValidEmotion reports whether v is a known category.
func ValidEmotion(v EmotionCategory) bool {
	switch v {
	case EmotionJoy, EmotionCalm, EmotionSadness, EmotionAnger,
		EmotionFear, EmotionSurprise, EmotionLonging, EmotionWonder:
		return true
	default:
		return false
	}
}

// Enrichment is the asynchronously-computed classification attached to a
// reflection exactly once. A reflection without it is still pending.
type Enrichment struct {
	Primary   EmotionCategory   `json:"primary"`
	Secondary EmotionCategory   `json:"secondary,omitempty"`
	Valence   float64           `json:"valence"`
	Arousal   float64           `json:"arousal"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// ReflectionRecord is one unit of user input. Once Enrichment is set the
// record is immutable for dream construction and reveal gating.
type ReflectionRecord struct {
	ID         string      `json:"id"`
	OwnerID    string      `json:"ownerId"`
	Text       string      `json:"text"`
	CreatedAt  time.Time   `json:"createdAt"`
	Enrichment *Enrichment `json:"enrichment,omitempty"`
}

// Enriched reports whether the external analysis has completed.
func (r ReflectionRecord) Enriched() bool {
	return r.Enrichment != nil
}

// DreamKind is the category of a compiled dream.
type DreamKind string

const (
	DreamKindMemory  DreamKind = "memory"
	DreamKindSymbol  DreamKind = "symbol"
	DreamKindJourney DreamKind = "journey"
)

// Beat is one step of a dream's narrative sequence. MomentID, when set,
// references the reflection the beat was drawn from.
type Beat struct {
	Text     string `json:"text"`
	MomentID string `json:"momentId,omitempty"`
}

// PendingDream is a constructed-but-not-yet-delivered artifact. At most one
// exists per user; its lifetime is bounded by ExpiresAt in addition to the
// store's own TTL.
type PendingDream struct {
	ArtifactID    string    `json:"artifactId"`
	Kind          DreamKind `json:"kind"`
	Beats         []Beat    `json:"beats"`
	UsedMomentIDs []string  `json:"usedMomentIds"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the artifact is past its explicit expiry at now.
func (d PendingDream) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

// DreamState is the per-user rolling memory of the last delivered dream.
// It is written only by the completion flow.
type DreamState struct {
	LastDreamAt      time.Time `json:"lastDreamAt"`
	LastKind         DreamKind `json:"lastKind"`
	UsedMomentIDs    []string  `json:"usedMomentIds"`
	ScriptArchiveKey string    `json:"scriptArchiveKey,omitempty"`
}

// Build refusal and delivery reason codes.
const (
	ReasonLockExists        = "lock_exists"
	ReasonPendingExists     = "pending_exists"
	ReasonNoReflections     = "no_reflections"
	ReasonFetchInconsistent = "fetch_inconsistent"
	ReasonBuildFailed       = "build_failed"
	ReasonError             = "error"
	ReasonBuilt             = "built"
	ReasonGuest             = "guest"
	ReasonNotAdmitted       = "not_admitted"
	ReasonNoPending         = "no_pending"
	ReasonExpired           = "expired"
	ReasonAdmitted          = "admitted"
)

// Delivery routes.
const (
	RouteDream    = "dream"
	RouteFallback = "fallback"
)
