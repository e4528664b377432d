package reveal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"reverie/pkg/domain"
)

type fakeFetcher struct {
	calls      atomic.Int32
	enrichAt   int32
	failBefore int32
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (domain.ReflectionRecord, error) {
	n := f.calls.Add(1)
	if n <= f.failBefore {
		return domain.ReflectionRecord{}, errors.New("upstream unavailable")
	}
	rec := domain.ReflectionRecord{ID: id, OwnerID: "user-1", Text: "entry"}
	if f.enrichAt > 0 && n >= f.enrichAt {
		rec.Enrichment = &domain.Enrichment{Primary: domain.EmotionCalm}
	}
	return rec, nil
}

func TestPollerReportsReadyOnce(t *testing.T) {
	fetcher := &fakeFetcher{enrichAt: 3}
	var ready atomic.Int32
	var timedOut atomic.Int32
	p := NewPoller(fetcher, "r1", PollerConfig{
		Interval:    10 * time.Millisecond,
		HardTimeout: 5 * time.Second,
		OnReady: func(rec domain.ReflectionRecord) {
			ready.Add(1)
			if rec.Enrichment == nil || rec.Enrichment.Primary != domain.EmotionCalm {
				t.Errorf("unexpected record: %+v", rec)
			}
		},
		OnTimeout: func() { timedOut.Add(1) },
	})
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("poller did not finish")
	}
	if ready.Load() != 1 || timedOut.Load() != 0 {
		t.Fatalf("ready=%d timeouts=%d", ready.Load(), timedOut.Load())
	}
	if !p.Ready() || p.TimedOut() {
		t.Fatalf("ready=%v timedOut=%v", p.Ready(), p.TimedOut())
	}
}

func TestPollerRecoversAfterErrors(t *testing.T) {
	fetcher := &fakeFetcher{failBefore: 2, enrichAt: 4}
	var ready atomic.Int32
	p := NewPoller(fetcher, "r1", PollerConfig{
		Interval:    5 * time.Millisecond,
		HardTimeout: 5 * time.Second,
		OnReady:     func(domain.ReflectionRecord) { ready.Add(1) },
	})
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("poller did not finish")
	}
	if ready.Load() != 1 {
		t.Fatalf("ready=%d", ready.Load())
	}
}

func TestPollerHardTimeoutFiresOnce(t *testing.T) {
	fetcher := &fakeFetcher{} // never enriches
	var timedOut atomic.Int32
	p := NewPoller(fetcher, "r1", PollerConfig{
		Interval:    10 * time.Millisecond,
		SoftTimeout: 50 * time.Millisecond,
		HardTimeout: 150 * time.Millisecond,
		OnTimeout:   func() { timedOut.Add(1) },
	})
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("poller did not stop after hard timeout")
	}
	if timedOut.Load() != 1 {
		t.Fatalf("timeout callbacks = %d", timedOut.Load())
	}
	if p.Ready() || !p.TimedOut() {
		t.Fatalf("ready=%v timedOut=%v", p.Ready(), p.TimedOut())
	}

	// No attempts are scheduled after the loop exits.
	settled := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if fetcher.calls.Load() != settled {
		t.Fatalf("poller kept fetching after timeout: %d -> %d", settled, fetcher.calls.Load())
	}
	if !p.SoftExpired() {
		t.Fatalf("soft timeout should have elapsed")
	}
}

func TestPollerStopCancelsWork(t *testing.T) {
	fetcher := &fakeFetcher{}
	var fired atomic.Int32
	p := NewPoller(fetcher, "r1", PollerConfig{
		Interval:    10 * time.Millisecond,
		HardTimeout: 100 * time.Millisecond,
		OnReady:     func(domain.ReflectionRecord) { fired.Add(1) },
		OnTimeout:   func() { fired.Add(1) },
	})
	p.Start(context.Background())
	p.Stop()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatalf("poller did not exit after Stop")
	}
	time.Sleep(150 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("callback fired after Stop: %d", fired.Load())
	}
}

func TestPollerDelayBounds(t *testing.T) {
	p := NewPoller(&fakeFetcher{}, "r1", PollerConfig{})
	for i := 0; i < 200; i++ {
		d := p.nextDelay()
		if d < defaultPollInterval-pollJitter || d > defaultPollInterval+pollJitter {
			t.Fatalf("jittered delay out of bounds: %v", d)
		}
	}

	// Error backoff scales with consecutive failures and caps at 3x.
	want := []time.Duration{
		defaultPollInterval,
		2 * defaultPollInterval,
		3 * defaultPollInterval,
		3 * defaultPollInterval,
	}
	for i, expect := range want {
		if got := p.nextErrorDelay(); got != expect {
			t.Fatalf("error delay %d = %v, want %v", i+1, got, expect)
		}
	}
}
