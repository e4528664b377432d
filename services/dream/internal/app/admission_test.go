package app

import (
	"fmt"
	"testing"
)

func TestAdmitIsDeterministic(t *testing.T) {
	first := Admit("user-1", "artifact-1")
	for i := 0; i < 1000; i++ {
		if Admit("user-1", "artifact-1") != first {
			t.Fatalf("decision flipped on call %d", i)
		}
	}
}

func TestAdmitVariesAcrossArtifacts(t *testing.T) {
	admitted := 0
	const trials = 5000
	for i := 0; i < trials; i++ {
		if Admit("user-1", fmt.Sprintf("artifact-%d", i)) {
			admitted++
		}
	}
	if admitted == 0 || admitted == trials {
		t.Fatalf("expected both outcomes, admitted=%d of %d", admitted, trials)
	}
	ratio := float64(admitted) / float64(trials)
	if ratio < 0.77 || ratio > 0.83 {
		t.Fatalf("admission ratio %.3f out of expected band around 0.80", ratio)
	}
}

func TestAdmitDependsOnUser(t *testing.T) {
	// The seed covers the whole (user, artifact) pair: across many users the
	// same artifact id must not produce a single global answer.
	varied := false
	first := Admit("user-0", "artifact-x")
	for i := 1; i < 200; i++ {
		if Admit(fmt.Sprintf("user-%d", i), "artifact-x") != first {
			varied = true
			break
		}
	}
	if !varied {
		t.Fatalf("admission ignored the user component of the seed")
	}
}
