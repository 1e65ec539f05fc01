// Package summarizer keeps persisted conversation blobs below a size
// bound. A background task scans conversations/ on an interval,
// compresses oversized or stale files through the external generator,
// and atomically archives the originals.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hivebrain/internal/config"
	"hivebrain/internal/llm"
	"hivebrain/internal/logging"
)

const (
	conversationsDir = "conversations"
	archiveDir       = "archive/conversations"
	summariesDir     = "summaries"

	// contextTailChars is how much of an oversized context gets
	// summarized by CheckContextSize.
	contextTailChars = 8000
	// contextSummaryTokens caps the CheckContextSize summary.
	contextSummaryTokens = 300
)

// summaryPrompt is the fixed instruction prepended to every
// conversation transcript sent to the generator.
const summaryPrompt = `Please provide a comprehensive but concise summary of this conversation. Focus on:
1. Key topics discussed
2. Important user information or preferences
3. Decisions made or conclusions reached
4. Action items or follow-ups
5. Emotional context or user satisfaction

Conversation:
---
%s
---`

// Status reflects the worker's lifecycle for the façade.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// Agent is the summarizer worker. One instance owns the three state
// directories under dataDir.
type Agent struct {
	cfg       config.SummarizerConfig
	interval  time.Duration
	generator llm.Generator
	dataDir   string

	mu        sync.Mutex
	status    Status
	lastErr   error
	stopCh    chan struct{}
	doneCh    chan struct{}
	scanNudge chan struct{}
}

// NewAgent creates a summarizer over dataDir. The three state
// directories are created eagerly.
func NewAgent(cfg config.SummarizerConfig, interval time.Duration, generator llm.Generator, dataDir string) (*Agent, error) {
	a := &Agent{
		cfg:       cfg,
		interval:  interval,
		generator: generator,
		dataDir:   dataDir,
		status:    StatusStopped,
		scanNudge: make(chan struct{}, 1),
	}
	for _, dir := range []string{a.ConversationsPath(), a.ArchivePath(), a.SummariesPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return a, nil
}

// ConversationsPath is where raw conversation blobs accumulate.
func (a *Agent) ConversationsPath() string { return filepath.Join(a.dataDir, conversationsDir) }

// ArchivePath is where processed originals are preserved.
func (a *Agent) ArchivePath() string { return filepath.Join(a.dataDir, archiveDir) }

// SummariesPath is where summary blobs are written.
func (a *Agent) SummariesPath() string { return filepath.Join(a.dataDir, summariesDir) }

// conversationFile is the on-disk shape the summarizer consumes.
type conversationFile struct {
	SessionID string          `json:"session_id"`
	Device    string          `json:"device"`
	Timestamp string          `json:"timestamp"`
	Messages  []messageRecord `json:"messages"`
}

type messageRecord struct {
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
}

// summaryFile is the blob written to summaries/.
type summaryFile struct {
	OriginalSessionID    string `json:"original_session_id"`
	Device               string `json:"device"`
	OriginalTimestamp    string `json:"original_timestamp"`
	OriginalMessageCount int    `json:"original_message_count"`
	Summary              string `json:"summary"`
	SummarizedAt         string `json:"summarized_at"`
	SummarizerModel      string `json:"summarizer_model"`
	FileSizeBytes        int64  `json:"file_size_bytes"`
}

// needsSummarization applies the trigger rule: size over the bound or
// mtime older than the age bound. Either alone is sufficient.
func (a *Agent) needsSummarization(info os.FileInfo) bool {
	if info.Size() > a.cfg.MaxFileSizeBytes {
		return true
	}
	maxAge := time.Duration(a.cfg.MaxAgeDays) * 24 * time.Hour
	return maxAge > 0 && time.Since(info.ModTime()) > maxAge
}

// Sweep scans conversations/ once and processes every file matching
// the trigger rule sequentially. One file's failure never stops the
// sweep. Returns the number of files summarized.
func (a *Agent) Sweep(ctx context.Context) (int, error) {
	log := logging.Get(logging.CategorySummarizer)

	entries, err := os.ReadDir(a.ConversationsPath())
	if err != nil {
		return 0, fmt.Errorf("scanning conversations: %w", err)
	}

	processed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Warnw("stat failed, skipping", "file", entry.Name(), "error", err)
			continue
		}
		if !a.needsSummarization(info) {
			continue
		}

		path := filepath.Join(a.ConversationsPath(), entry.Name())
		if err := a.SummarizeFile(ctx, path); err != nil {
			log.Warnw("summarization failed, original left intact", "file", entry.Name(), "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// SummarizeOnStartup performs one synchronous sweep.
func (a *Agent) SummarizeOnStartup(ctx context.Context) error {
	n, err := a.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Get(logging.CategorySummarizer).Infow("startup sweep done", "summarized", n)
	}
	return nil
}

// SummarizeFile processes a single conversation blob out of band:
// summarize, write the summary atomically, then archive or delete the
// original. A generator failure leaves the original untouched.
func (a *Agent) SummarizeFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var conv conversationFile
	if err := json.Unmarshal(data, &conv); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if conv.SessionID == "" {
		return fmt.Errorf("%s has no session_id", path)
	}

	transcript := renderTranscript(conv.Messages)
	summary, _, err := a.generator.Generate(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(summaryPrompt, transcript)},
	}, llm.Options{
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxSummaryTokens,
	})
	if err != nil {
		return fmt.Errorf("generating summary for %s: %w", conv.SessionID, err)
	}

	blob := summaryFile{
		OriginalSessionID:    conv.SessionID,
		Device:               conv.Device,
		OriginalTimestamp:    conv.Timestamp,
		OriginalMessageCount: len(conv.Messages),
		Summary:              summary,
		SummarizedAt:         time.Now().UTC().Format(time.RFC3339),
		SummarizerModel:      a.generator.Model(),
		FileSizeBytes:        int64(len(data)),
	}
	summaryPath := filepath.Join(a.SummariesPath(), conv.SessionID+"_summary.json")
	if err := writeJSONAtomic(summaryPath, blob); err != nil {
		return err
	}

	if a.cfg.KeepOriginals {
		dest := filepath.Join(a.ArchivePath(), filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			return fmt.Errorf("archiving %s: %w", path, err)
		}
	} else if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	logging.Get(logging.CategorySummarizer).Infow("conversation summarized",
		"session", conv.SessionID, "messages", blob.OriginalMessageCount, "bytes", blob.FileSizeBytes)
	return nil
}

// renderTranscript joins messages into the prompt transcript,
// double-newline separated.
func renderTranscript(messages []messageRecord) string {
	var parts []string
	for _, msg := range messages {
		if msg.UserMessage != "" {
			parts = append(parts, "**USER**: "+msg.UserMessage)
		}
		if msg.BotResponse != "" {
			parts = append(parts, "**ASSISTANT**: "+msg.BotResponse)
		}
	}
	return strings.Join(parts, "\n\n")
}

// CheckContextSize estimates tokens as len/4. Above the configured cap
// it summarizes the last 8000 characters (300 token cap, same
// temperature) and returns (true, summary).
func (a *Agent) CheckContextSize(ctx context.Context, text string) (bool, string, error) {
	if len(text)/4 <= a.cfg.MaxContextTokens {
		return false, "", nil
	}

	tail := text
	if len(tail) > contextTailChars {
		tail = tail[len(tail)-contextTailChars:]
	}

	summary, _, err := a.generator.Generate(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: "Please summarize this conversation context briefly, preserving key facts and decisions:\n\n" + tail},
	}, llm.Options{
		Temperature: a.cfg.Temperature,
		MaxTokens:   contextSummaryTokens,
	})
	if err != nil {
		return true, "", fmt.Errorf("summarizing context: %w", err)
	}
	return true, summary, nil
}

// Stats reports the worker's state and per-directory file counts.
func (a *Agent) Stats() map[string]any {
	a.mu.Lock()
	status := a.status
	a.mu.Unlock()

	stats := map[string]any{
		"model":            a.generator.Model(),
		"status":           string(status),
		"running":          status == StatusRunning,
		"interval_seconds": int(a.interval.Seconds()),
	}
	for name, dir := range map[string]string{
		"conversation_files": a.ConversationsPath(),
		"archived_files":     a.ArchivePath(),
		"summary_files":      a.SummariesPath(),
	} {
		count := 0
		if entries, err := os.ReadDir(dir); err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					count++
				}
			}
		}
		stats[name] = count
	}
	return stats
}

// writeJSONAtomic writes to a temp file in the target directory and
// renames it into place.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
