package app

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// admissionProbability is the share of delivery attempts that route to the
// dream once a fresh artifact exists; the rest defer to the ordinary
// reflection flow. Fixed rather than configurable so the decision cannot
// drift within an artifact's lifetime.
const admissionProbability = 0.80

// Admit decides whether this delivery attempt shows the pending dream.
// The decision is a pure function of (userID, artifactID): the seed is a
// sha256 digest of the pair fed into a seeded PRNG, so repeated requests
// within the artifact's lifetime cannot flip-flop.
func Admit(userID, artifactID string) bool {
	sum := sha256.Sum256([]byte(userID + ":" + artifactID))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))
	return rng.Float64() < admissionProbability
}
