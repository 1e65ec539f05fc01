package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxLines bounds the persistent log file.
	DefaultMaxLines = 1000
	// DefaultMaxAgeDays bounds how long a line survives.
	DefaultMaxAgeDays = 7

	timestampLayout = "2006-01-02 15:04:05"
	gcEvery         = 100
)

// RetentionLog is a bounded, newest-first log file. Every emit rewrites
// the file with the newest line on top, truncated to maxLines. An age
// sweep drops lines older than maxAgeDays; it runs at load time and
// then once every 100 emits. Line age is parsed from the first 19
// characters of the line; unparseable lines are kept.
type RetentionLog struct {
	path       string
	maxLines   int
	maxAgeDays int

	mu    sync.Mutex
	lines []string
	emits int
	now   func() time.Time
}

// NewRetentionLog opens (or creates) the log at path. An existing file
// seeds the buffer with its last maxLines lines, then an age sweep runs
// immediately.
func NewRetentionLog(path string, maxLines, maxAgeDays int) (*RetentionLog, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}

	r := &RetentionLog{
		path:       path,
		maxLines:   maxLines,
		maxAgeDays: maxAgeDays,
		now:        time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(data) > 0 {
		all := splitLines(string(data))
		if len(all) > maxLines {
			all = all[len(all)-maxLines:]
		}
		r.lines = all
	}
	r.sweep()

	return r, nil
}

// Emit timestamps msg, prepends it, and rewrites the file. Write
// failures are swallowed; the in-memory buffer stays authoritative.
func (r *RetentionLog) Emit(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := r.now().Format(timestampLayout) + " " + strings.TrimRight(msg, "\n")
	r.lines = append([]string{line}, r.lines...)
	if len(r.lines) > r.maxLines {
		r.lines = r.lines[:r.maxLines]
	}

	r.emits++
	if r.emits%gcEvery == 0 {
		r.sweep()
	}

	r.flush()
}

// Lines returns a copy of the current buffer, newest first.
func (r *RetentionLog) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Write adapts the retention log to io.Writer so it can serve as a zap
// sink. Each newline-separated chunk becomes one emitted line; the
// encoder's own timestamp is preserved as the line prefix.
func (r *RetentionLog) Write(p []byte) (int, error) {
	for _, line := range splitLines(string(p)) {
		r.mu.Lock()
		r.lines = append([]string{line}, r.lines...)
		if len(r.lines) > r.maxLines {
			r.lines = r.lines[:r.maxLines]
		}
		r.emits++
		if r.emits%gcEvery == 0 {
			r.sweep()
		}
		r.flush()
		r.mu.Unlock()
	}
	return len(p), nil
}

// Sync satisfies zapcore.WriteSyncer.
func (r *RetentionLog) Sync() error { return nil }

// sweep drops lines older than maxAgeDays. Caller holds mu (or is the
// constructor, before the log is shared).
func (r *RetentionLog) sweep() {
	cutoff := r.nowFn().AddDate(0, 0, -r.maxAgeDays)
	kept := r.lines[:0]
	for _, line := range r.lines {
		if len(line) >= len(timestampLayout) {
			ts, err := time.ParseInLocation(timestampLayout, line[:len(timestampLayout)], time.Local)
			if err == nil && ts.Before(cutoff) {
				continue
			}
		}
		kept = append(kept, line)
	}
	r.lines = kept
}

func (r *RetentionLog) nowFn() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// flush rewrites the whole file, newest line first.
func (r *RetentionLog) flush() {
	var b strings.Builder
	for _, line := range r.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_ = os.WriteFile(r.path, []byte(b.String()), 0o644)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
