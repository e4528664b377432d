package reveal

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"reverie/pkg/domain"
)

const (
	defaultPollInterval = 3 * time.Second
	pollJitter          = 500 * time.Millisecond
	softTimeout         = 90 * time.Second
	hardTimeout         = 150 * time.Second
	maxBackoffFactor    = 3
)

// Fetcher retrieves the current reflection record, typically over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, reflectionID string) (domain.ReflectionRecord, error)
}

// PollerConfig tunes the enrichment poller. Zero values fall back to the
// defaults above.
type PollerConfig struct {
	Interval    time.Duration
	SoftTimeout time.Duration
	HardTimeout time.Duration
	OnReady     func(rec domain.ReflectionRecord)
	OnTimeout   func()
	Logger      *slog.Logger
}

// Poller repeatedly fetches one reflection until its enrichment appears or
// the hard timeout elapses. Base interval carries symmetric jitter so many
// concurrent sessions do not burst in sync; request errors back the interval
// off by the consecutive error count, capped at 3x.
type Poller struct {
	fetcher      Fetcher
	reflectionID string
	interval     time.Duration
	softTimeout  time.Duration
	hardTimeout  time.Duration
	onReady      func(domain.ReflectionRecord)
	onTimeout    func()
	logger       *slog.Logger
	rng          *rand.Rand

	mu        sync.Mutex
	startedAt time.Time
	errCount  int
	ready     bool
	timedOut  bool
	stopped   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller constructs a poller for one reflection.
func NewPoller(fetcher Fetcher, reflectionID string, cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	soft := cfg.SoftTimeout
	if soft <= 0 {
		soft = softTimeout
	}
	hard := cfg.HardTimeout
	if hard <= 0 {
		hard = hardTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher:      fetcher,
		reflectionID: reflectionID,
		interval:     interval,
		softTimeout:  soft,
		hardTimeout:  hard,
		onReady:      cfg.OnReady,
		onTimeout:    cfg.OnTimeout,
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		done:         make(chan struct{}),
	}
}

// Start begins polling. It returns immediately; callbacks run on the
// poller's own goroutine. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if !p.startedAt.IsZero() {
		p.mu.Unlock()
		return
	}
	p.startedAt = time.Now()
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop cancels all pending timers and in-flight fetches so callbacks cannot
// fire against a torn-down caller. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the poller has finished (ready, timed out, or stopped).
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Ready reports whether enrichment was observed.
func (p *Poller) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// TimedOut reports whether the hard timeout fired; once true the poller
// reports not-ready permanently.
func (p *Poller) TimedOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timedOut
}

// Elapsed returns time since Start, for UI soft-timeout messaging.
func (p *Poller) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		return 0
	}
	return time.Since(p.startedAt)
}

// SoftExpired reports whether the informational soft timeout has elapsed.
// Polling continues past it; only the hard timeout stops work.
func (p *Poller) SoftExpired() bool {
	return p.Elapsed() >= p.softTimeout
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	deadline := time.NewTimer(p.hardTimeout)
	defer deadline.Stop()

	var wait *time.Timer
	defer func() {
		if wait != nil {
			wait.Stop()
		}
	}()

	for {
		rec, err := p.fetcher.Fetch(ctx, p.reflectionID)
		if ctx.Err() != nil {
			return
		}
		var delay time.Duration
		if err != nil {
			delay = p.nextErrorDelay()
			p.logger.Debug("enrichment poll failed", "reflection_id", p.reflectionID, "err", err, "retry_in", delay)
		} else if rec.Enriched() {
			p.finishReady(rec)
			return
		} else {
			delay = p.nextDelay()
			p.mu.Lock()
			p.errCount = 0
			p.mu.Unlock()
		}

		if wait == nil {
			wait = time.NewTimer(delay)
		} else {
			wait.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			p.finishTimeout()
			return
		case <-wait.C:
		}
	}
}

// nextDelay is the jittered base interval.
func (p *Poller) nextDelay() time.Duration {
	jitter := time.Duration(p.rng.Int63n(int64(2*pollJitter))) - pollJitter
	delay := p.interval + jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}

// nextErrorDelay scales the base interval by the consecutive error count,
// capped at maxBackoffFactor.
func (p *Poller) nextErrorDelay() time.Duration {
	p.mu.Lock()
	p.errCount++
	factor := p.errCount
	p.mu.Unlock()
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}
	return time.Duration(factor) * p.interval
}

func (p *Poller) finishReady(rec domain.ReflectionRecord) {
	p.mu.Lock()
	if p.ready || p.timedOut || p.stopped {
		p.mu.Unlock()
		return
	}
	p.ready = true
	onReady := p.onReady
	p.mu.Unlock()
	if onReady != nil {
		onReady(rec)
	}
}

func (p *Poller) finishTimeout() {
	p.mu.Lock()
	if p.ready || p.timedOut || p.stopped {
		p.mu.Unlock()
		return
	}
	p.timedOut = true
	onTimeout := p.onTimeout
	p.mu.Unlock()
	p.logger.Info("enrichment poll hard timeout", "reflection_id", p.reflectionID)
	if onTimeout != nil {
		onTimeout()
	}
}
