// Package logging provides the shared zap logger for fabula, scoped by
// category so log output can be filtered per subsystem.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names match the internal package that owns the messages.
const (
	CategoryDetermine  = "determine"
	CategoryWorkspace  = "workspace"
	CategoryRepository = "repository"
	CategoryReasoning  = "reasoning"
	CategoryEmbedding  = "embedding"
	CategoryAgent      = "agent"
	CategoryIndex      = "index"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Configure installs the process-wide logger. Verbose enables debug level.
// Safe to call more than once; the last call wins.
func Configure(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	root = logger
	mu.Unlock()
	return logger, nil
}

// SetLogger replaces the process-wide logger. Tests use this with
// zaptest.NewLogger to capture engine output.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	root = l
	mu.Unlock()
}

// L returns the named logger for a category.
func L(category string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(category)
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
