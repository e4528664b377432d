package reveal

import (
	"sync"
	"sync/atomic"
	"testing"

	"reverie/pkg/domain"
)

func TestOrchestratorTimerThenSignal(t *testing.T) {
	o := NewOrchestrator(nil)
	var fired atomic.Int32
	var got domain.EmotionCategory
	o.OnFire(func(primary domain.EmotionCategory) {
		fired.Add(1)
		got = primary
	})

	if o.Stage() != StageAwaitingBoth {
		t.Fatalf("initial stage = %s", o.Stage())
	}
	o.MarkTimerComplete()
	if o.Stage() != StageAwaitingSignal {
		t.Fatalf("after timer stage = %s", o.Stage())
	}
	if fired.Load() != 0 {
		t.Fatalf("fired before signal")
	}
	o.SetPrimary(domain.EmotionJoy)
	if o.Stage() != StageFired {
		t.Fatalf("after signal stage = %s", o.Stage())
	}
	if fired.Load() != 1 || got != domain.EmotionJoy {
		t.Fatalf("fire count=%d primary=%s", fired.Load(), got)
	}
}

func TestOrchestratorSignalThenTimer(t *testing.T) {
	o := NewOrchestrator(nil)
	var fired atomic.Int32
	o.OnFire(func(domain.EmotionCategory) { fired.Add(1) })

	o.SetPrimary(domain.EmotionSadness)
	if o.Stage() != StageAwaitingTimer {
		t.Fatalf("after signal stage = %s", o.Stage())
	}
	if o.ResolvedAt().IsZero() {
		t.Fatalf("expected resolution timestamp")
	}
	o.MarkTimerComplete()
	if o.Stage() != StageFired || fired.Load() != 1 {
		t.Fatalf("stage=%s fires=%d", o.Stage(), fired.Load())
	}
}

func TestOrchestratorFiresOnceAcrossRepeats(t *testing.T) {
	o := NewOrchestrator(nil)
	var fired atomic.Int32
	o.OnFire(func(domain.EmotionCategory) { fired.Add(1) })

	o.MarkTimerComplete()
	o.MarkTimerComplete()
	o.SetPrimary(domain.EmotionFear)
	o.SetPrimary(domain.EmotionJoy)
	o.MarkTimerComplete()
	o.SetPrimary(domain.EmotionFear)

	if fired.Load() != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired.Load())
	}
	// First valid primary wins.
	if o.Primary() != domain.EmotionFear {
		t.Fatalf("primary = %s", o.Primary())
	}
}

func TestOrchestratorRejectsInvalidPrimary(t *testing.T) {
	o := NewOrchestrator(nil)
	var fired atomic.Int32
	o.OnFire(func(domain.EmotionCategory) { fired.Add(1) })

	o.MarkTimerComplete()
	o.SetPrimary(domain.EmotionCategory("confusion"))
	if o.Stage() != StageAwaitingSignal || fired.Load() != 0 {
		t.Fatalf("invalid primary changed state: stage=%s fires=%d", o.Stage(), fired.Load())
	}
	o.SetPrimary(domain.EmotionWonder)
	if o.Stage() != StageFired || fired.Load() != 1 {
		t.Fatalf("valid primary after invalid: stage=%s fires=%d", o.Stage(), fired.Load())
	}
}

func TestOrchestratorFiresOnceUnderConcurrency(t *testing.T) {
	for i := 0; i < 50; i++ {
		o := NewOrchestrator(nil)
		var fired atomic.Int32
		o.OnFire(func(domain.EmotionCategory) { fired.Add(1) })

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			o.MarkTimerComplete()
		}()
		go func() {
			defer wg.Done()
			<-start
			o.SetPrimary(domain.EmotionCalm)
		}()
		close(start)
		wg.Wait()

		if fired.Load() != 1 {
			t.Fatalf("iteration %d: fires=%d", i, fired.Load())
		}
		if o.Stage() != StageFired {
			t.Fatalf("iteration %d: stage=%s", i, o.Stage())
		}
	}
}

func TestOrchestratorSubscribersSeeEveryTransition(t *testing.T) {
	o := NewOrchestrator(nil)
	var mu sync.Mutex
	var seen []Stage
	o.Subscribe(func(stage Stage) {
		mu.Lock()
		seen = append(seen, stage)
		mu.Unlock()
	})

	o.SetPrimary(domain.EmotionJoy)
	o.MarkTimerComplete()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StageAwaitingTimer || seen[1] != StageFired {
		t.Fatalf("transitions = %v", seen)
	}
}

func TestOrchestratorLateOnFireSubscriber(t *testing.T) {
	o := NewOrchestrator(nil)
	o.MarkTimerComplete()
	o.SetPrimary(domain.EmotionLonging)

	var got domain.EmotionCategory
	o.OnFire(func(primary domain.EmotionCategory) { got = primary })
	if got != domain.EmotionLonging {
		t.Fatalf("late subscriber got %q", got)
	}
}
