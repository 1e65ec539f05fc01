// Package logging provides categorized structured logging for the
// communal brain, plus the bounded persistent activity log kept next to
// the database. Components fetch a named logger per category; the
// process entrypoint installs the base zap logger once at startup.
// Until then every category logs through a no-op core, so library code
// never needs a nil check.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategoryBrain        Category = "brain"
	CategoryStore        Category = "store"
	CategoryConversation Category = "conversation"
	CategoryDevice       Category = "device"
	CategorySummarizer   Category = "summarizer"
	CategorySync         Category = "sync"
	CategoryEmbedding    Category = "embedding"
	CategoryLLM          Category = "llm"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	loggers = make(map[Category]*zap.SugaredLogger)
)

// SetBase installs the process-wide base logger. Category loggers are
// rebuilt from the new base on next use.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
}

// Get returns the sugared logger named after a category.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}
	l := base.Named(string(c)).Sugar()
	loggers[c] = l
	return l
}

// Sync flushes the base logger's buffered output.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}
