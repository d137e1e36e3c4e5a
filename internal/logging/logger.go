// Package logging provides categorized zap loggers for the dispatch core.
// Each subsystem logs under its own category so a noisy category (streaming
// deltas, guard checks) can be silenced without losing dispatch-level logs.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryDispatch Category = "dispatch" // tool dispatch, trace, persistence
	CategoryPolicy   Category = "policy"   // effective policy resolution
	CategoryStream   Category = "stream"   // delta debouncer
	CategoryGuard    Category = "guard"    // repeat guard, progress auditor
	CategoryAutotune Category = "autotune" // settings negotiation
	CategoryMemory   Category = "memory"   // translation memory bridge/store
	CategoryLLM      Category = "llm"      // model transport
	CategoryConfig   Category = "config"   // config load and hot reload
)

// Options controls logger construction.
type Options struct {
	// Level is the minimum level emitted ("debug", "info", "warn", "error").
	Level string

	// Disabled maps category name to true to silence that category.
	Disabled map[string]bool

	// Development switches to the zap development encoder.
	Development bool
}

var (
	mu       sync.RWMutex
	root     *zap.Logger = zap.NewNop()
	sugared              = make(map[Category]*zap.SugaredLogger)
	disabled             = make(map[string]bool)
)

// Initialize builds the shared zap core. Safe to call more than once; later
// calls replace the core and drop cached category loggers.
func Initialize(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(levelOrDefault(opts.Level))
	if err != nil {
		return err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	sugared = make(map[Category]*zap.SugaredLogger)
	disabled = make(map[string]bool)
	for k, v := range opts.Disabled {
		disabled[k] = v
	}
	return nil
}

// UseNop silences all logging. Used by tests.
func UseNop() {
	mu.Lock()
	defer mu.Unlock()
	root = zap.NewNop()
	sugared = make(map[Category]*zap.SugaredLogger)
}

// For returns the sugared logger for a category.
func For(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if s, ok := sugared[cat]; ok {
		mu.RUnlock()
		return s
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if s, ok := sugared[cat]; ok {
		return s
	}
	base := root
	if disabled[string(cat)] {
		base = zap.NewNop()
	}
	s := base.Sugar().With("cat", string(cat))
	sugared[cat] = s
	return s
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
