// Package logging provides categorized structured logging for butler.
// Every subsystem logs through a named zap child logger so log output can
// be filtered per category. Before Init is called all helpers are no-ops,
// which keeps library code usable from tests without global setup.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem a log line belongs to.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and wiring
	CategoryAgent     Category = "agent"     // Orchestrator loop
	CategoryRouting   Category = "routing"   // Action routing decisions
	CategoryTools     Category = "tools"     // Registry and tool execution
	CategorySkills    Category = "skills"    // Skill selection and invocation
	CategoryPlanner   Category = "planner"   // Planner round trips
	CategorySession   Category = "session"   // Session sequencing
	CategoryMemory    Category = "memory"    // Memory store access
	CategoryAudit     Category = "audit"     // Audit sink
	CategoryConfig    Category = "config"    // Config load and reload
)

var (
	mu       sync.RWMutex
	root     = zap.NewNop()
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	children = make(map[Category]*zap.SugaredLogger)
)

// Init configures the process-wide logger. levelStr is one of
// debug/info/warn/error; format is "json" or "console".
func Init(levelStr, format string) error {
	lvl, err := parseLevel(levelStr)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	root = logger
	children = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()

	level.SetLevel(lvl)
	return nil
}

// SetLevel adjusts the level at runtime. Used by the config watcher.
func SetLevel(levelStr string) error {
	lvl, err := parseLevel(levelStr)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Replace swaps the root logger. Intended for tests.
func Replace(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	root = logger
	children = make(map[Category]*zap.SugaredLogger)
}

// Root returns the current root logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Get returns the sugared logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := children[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := children[cat]; ok {
		return l
	}
	l := root.Named(string(cat)).Sugar()
	children[cat] = l
	return l
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %q", s)
	}
}
