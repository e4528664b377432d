package app

import (
	"fmt"
	"strings"
	"time"

	"reverie/pkg/compiler"
	"reverie/pkg/storage"
	"reverie/pkg/store"
)

const (
	defaultReflectionWindow = 180 * 24 * time.Hour
	defaultPendingTTL       = 14 * 24 * time.Hour
	defaultLockTTL          = 24 * time.Hour
	defaultBuildConcurrency = 4
	defaultTimezone         = "America/New_York"
)

// Config holds runtime configuration for the dream core.
type Config struct {
	RedisAddr         string
	RedisPassword     string
	DatabaseURL       string
	CompilerURL       string
	ReferenceTimezone string
	ReflectionWindow  time.Duration
	PendingTTL        time.Duration
	LockTTL           time.Duration
	BuildConcurrency  int

	// Injectable collaborators; nil values are wired from the fields above.
	Dreams      store.DreamStore
	Reflections store.ReflectionArchive
	Compiler    compiler.Compiler
	Scripts     storage.ObjectStore
}

// App wires the eligibility gate, build pipeline, admission decider, and
// delivery/completion flows over injected stores.
type App struct {
	dreams      store.DreamStore
	reflections store.ReflectionArchive
	compiler    compiler.Compiler
	scripts     storage.ObjectStore
	loc         *time.Location
	window      time.Duration
	pendingTTL  time.Duration
	lockTTL     time.Duration
	buildLimit  int
	now         func() time.Time
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.ReflectionWindow <= 0 {
		cfg.ReflectionWindow = defaultReflectionWindow
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockTTL >= cfg.PendingTTL {
		return nil, fmt.Errorf("lock TTL %s must be shorter than pending TTL %s", cfg.LockTTL, cfg.PendingTTL)
	}
	if cfg.BuildConcurrency <= 0 {
		cfg.BuildConcurrency = defaultBuildConcurrency
	}

	tz := strings.TrimSpace(cfg.ReferenceTimezone)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone %q: %w", tz, err)
	}

	dreams := cfg.Dreams
	if dreams == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required")
		}
		dreams = store.NewRedisDreamStore(cfg.RedisAddr, cfg.RedisPassword)
	}

	reflections := cfg.Reflections
	if reflections == nil {
		if strings.TrimSpace(cfg.DatabaseURL) != "" {
			archive, err := store.NewGormReflectionArchive(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init reflection archive: %w", err)
			}
			reflections = archive
		} else if strings.TrimSpace(cfg.RedisAddr) != "" {
			reflections = store.NewRedisReflectionArchive(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			return nil, fmt.Errorf("reflection archive requires databaseURL or redisAddr")
		}
	}

	comp := cfg.Compiler
	if comp == nil {
		if strings.TrimSpace(cfg.CompilerURL) == "" {
			return nil, fmt.Errorf("compilerURL is required")
		}
		comp = compiler.NewHTTPCompiler(cfg.CompilerURL)
	}

	return &App{
		dreams:      dreams,
		reflections: reflections,
		compiler:    comp,
		scripts:     cfg.Scripts,
		loc:         loc,
		window:      cfg.ReflectionWindow,
		pendingTTL:  cfg.PendingTTL,
		lockTTL:     cfg.LockTTL,
		buildLimit:  cfg.BuildConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock pins the app's clock; used by tests.
func (a *App) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Today returns the current calendar date in the reference timezone. Day
// boundaries are fixed by this single timezone, not per user.
func (a *App) Today() string {
	return a.now().In(a.loc).Format("2006-01-02")
}

func validDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}
