// Package conversation manages chat sessions: lifecycle, turn append,
// history, and a listener fan-out for lifecycle events. Every operation
// on a session holds that session's mutex for its full duration, so
// operations on distinct sessions run in parallel while same-session
// operations are strictly serialized, storage loads included.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hivebrain/internal/logging"
	"hivebrain/internal/model"
	"hivebrain/internal/store"
)

// Event names dispatched to listeners. Stable external contract.
const (
	EventConversationStarted = "conversation_started"
	EventConversationEnded   = "conversation_ended"
	EventTurnAppended        = "turn_appended"
)

// Listener receives lifecycle events. Errors are logged and swallowed;
// one failing listener never blocks the others or the caller.
type Listener func(event string, payload map[string]any) error

// Manager owns the in-process session state on top of a storage
// backend.
type Manager struct {
	storage  store.Backend
	deviceID string

	mu        sync.Mutex
	active    map[string]*model.Conversation
	locks     map[string]*sync.Mutex
	listeners map[string][]Listener
}

// NewManager creates a manager persisting through the given backend.
func NewManager(storage store.Backend, deviceID string) *Manager {
	return &Manager{
		storage:   storage,
		deviceID:  deviceID,
		active:    make(map[string]*model.Conversation),
		locks:     make(map[string]*sync.Mutex),
		listeners: make(map[string][]Listener),
	}
}

// sessionLock returns the mutex for a session, creating it on demand.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// StartConversation opens a session. A missing sessionID gets the form
// chatbotName_<8 hex chars>.
func (m *Manager) StartConversation(ctx context.Context, chatbotName, sessionID string) (string, error) {
	if chatbotName == "" {
		return "", fmt.Errorf("%w: chatbot name is required", store.ErrInvalidArgument)
	}
	if sessionID == "" {
		sessionID = chatbotName + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv := &model.Conversation{
		SessionID:   sessionID,
		ChatbotName: chatbotName,
		DeviceID:    m.deviceID,
		StartTime:   time.Now().UTC(),
		Status:      model.ConversationActive,
		Turns:       []model.Turn{},
	}
	if err := m.storage.StoreConversation(ctx, conv); err != nil {
		return "", fmt.Errorf("persisting new conversation: %w", err)
	}

	m.mu.Lock()
	m.active[sessionID] = conv
	m.mu.Unlock()

	m.dispatch(EventConversationStarted, map[string]any{
		"session_id":   sessionID,
		"chatbot_name": chatbotName,
		"device_id":    m.deviceID,
	})
	return sessionID, nil
}

// loadLocked fetches a session into memory, reconstructing a minimal
// conversation when storage has never seen it. Caller holds the
// session lock.
func (m *Manager) loadLocked(ctx context.Context, sessionID string) (*model.Conversation, error) {
	m.mu.Lock()
	conv, ok := m.active[sessionID]
	m.mu.Unlock()
	if ok {
		return conv, nil
	}

	conv, err := m.storage.LoadConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		name := "unknown"
		if i := strings.Index(sessionID, "_"); i > 0 {
			name = sessionID[:i]
		}
		conv = &model.Conversation{
			SessionID:   sessionID,
			ChatbotName: name,
			DeviceID:    m.deviceID,
			StartTime:   time.Now().UTC(),
			Status:      model.ConversationActive,
			Turns:       []model.Turn{},
		}
	}

	m.mu.Lock()
	m.active[sessionID] = conv
	m.mu.Unlock()
	return conv, nil
}

// AddTurn appends one exchange to a session and persists it.
func (m *Manager) AddTurn(ctx context.Context, sessionID, userMessage, botResponse string, tokensUsed int, metadata map[string]any) (*model.Turn, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turn := model.Turn{
		TurnID:      uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		UserMessage: userMessage,
		BotResponse: botResponse,
		TokensUsed:  tokensUsed,
		Metadata:    metadata,
	}
	conv.Turns = append(conv.Turns, turn)

	if err := m.storage.StoreConversation(ctx, conv); err != nil {
		// Roll the in-memory append back so a retry does not double
		// the turn.
		conv.Turns = conv.Turns[:len(conv.Turns)-1]
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	m.dispatch(EventTurnAppended, map[string]any{
		"session_id":   sessionID,
		"turn_id":      turn.TurnID,
		"user_message": userMessage,
		"bot_response": botResponse,
		"tokens_used":  tokensUsed,
		"metadata":     metadata,
	})
	return &turn, nil
}

// GetConversationHistory returns up to the last maxTurns turns,
// loading the session on miss like AddTurn does.
func (m *Manager) GetConversationHistory(ctx context.Context, sessionID string, maxTurns int) ([]model.Turn, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns := conv.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Summary is the aggregate view of one session.
type Summary struct {
	SessionID            string     `json:"session_id"`
	ChatbotName          string     `json:"chatbot_name"`
	DeviceID             string     `json:"device_id"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Status               string     `json:"status"`
	TotalTurns           int        `json:"total_turns"`
	TotalTokens          int        `json:"total_tokens"`
	DurationSeconds      *float64   `json:"duration_seconds"`
	AverageTokensPerTurn float64    `json:"average_tokens_per_turn"`
}

// GetConversationSummary aggregates a session. DurationSeconds is
// end-start when ended, now-start when any turns exist, else nil.
func (m *Manager) GetConversationSummary(ctx context.Context, sessionID string) (*Summary, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return summarize(conv), nil
}

func summarize(conv *model.Conversation) *Summary {
	s := &Summary{
		SessionID:   conv.SessionID,
		ChatbotName: conv.ChatbotName,
		DeviceID:    conv.DeviceID,
		StartTime:   conv.StartTime,
		EndTime:     conv.EndTime,
		Status:      string(conv.Status),
		TotalTurns:  len(conv.Turns),
		TotalTokens: conv.TotalTokens(),
	}
	switch {
	case conv.EndTime != nil:
		d := conv.EndTime.Sub(conv.StartTime).Seconds()
		s.DurationSeconds = &d
	case len(conv.Turns) > 0:
		d := time.Since(conv.StartTime).Seconds()
		s.DurationSeconds = &d
	}
	if len(conv.Turns) > 0 {
		s.AverageTokensPerTurn = float64(s.TotalTokens) / float64(s.TotalTurns)
	}
	return s
}

// EndConversation completes a session: end_time set, status flipped,
// persisted, evicted from the in-memory and lock maps. Ending an
// unknown session does nothing.
func (m *Manager) EndConversation(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()

	m.mu.Lock()
	conv, ok := m.active[sessionID]
	m.mu.Unlock()
	if !ok {
		loaded, err := m.storage.LoadConversation(ctx, sessionID)
		if err != nil || loaded == nil {
			lock.Unlock()
			m.evictLock(sessionID)
			return err
		}
		conv = loaded
	}

	now := time.Now().UTC()
	conv.EndTime = &now
	conv.Status = model.ConversationCompleted
	if err := m.storage.StoreConversation(ctx, conv); err != nil {
		lock.Unlock()
		return fmt.Errorf("persisting ended conversation: %w", err)
	}

	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()

	lock.Unlock()
	m.evictLock(sessionID)

	m.dispatch(EventConversationEnded, map[string]any{
		"session_id":   sessionID,
		"chatbot_name": conv.ChatbotName,
		"device_id":    conv.DeviceID,
	})
	return nil
}

// evictLock drops the lock map entry so the map does not grow with
// session churn.
func (m *Manager) evictLock(sessionID string) {
	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
}

// ListActiveConversations returns the sessions currently in memory.
func (m *Manager) ListActiveConversations() []*model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Conversation, 0, len(m.active))
	for _, c := range m.active {
		out = append(out, c)
	}
	return out
}

// ListAllConversations merges storage results with active sessions,
// de-duplicating by session id and trimming to limit.
func (m *Manager) ListAllConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	stored, err := m.storage.ListConversations(ctx, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stored))
	out := make([]*model.Conversation, 0, len(stored))
	for _, c := range stored {
		seen[c.SessionID] = true
		out = append(out, c)
	}
	for _, c := range m.ListActiveConversations() {
		if !seen[c.SessionID] {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExportConversationSnapshot serializes one session including its
// summary.
func (m *Manager) ExportConversationSnapshot(ctx context.Context, sessionID string) (map[string]any, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns := make([]map[string]any, len(conv.Turns))
	for i, t := range conv.Turns {
		turns[i] = map[string]any{
			"turn_id":      t.TurnID,
			"timestamp":    t.Timestamp,
			"user_message": t.UserMessage,
			"bot_response": t.BotResponse,
			"tokens_used":  t.TokensUsed,
			"metadata":     t.Metadata,
		}
	}
	return map[string]any{
		"session_id":   conv.SessionID,
		"chatbot_name": conv.ChatbotName,
		"device_id":    conv.DeviceID,
		"start_time":   conv.StartTime,
		"end_time":     conv.EndTime,
		"status":       string(conv.Status),
		"metadata":     conv.Metadata,
		"turns":        turns,
		"summary":      summarize(conv),
	}, nil
}

// CleanupOldConversations archives completed conversations whose end
// time is older than the given number of days. Returns the count
// archived.
func (m *Manager) CleanupOldConversations(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", store.ErrInvalidArgument)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	all, err := m.storage.ListConversations(ctx, 0)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, c := range all {
		if c.Status != model.ConversationCompleted || c.EndTime == nil || !c.EndTime.Before(cutoff) {
			continue
		}
		c.Status = model.ConversationArchived
		if err := m.storage.StoreConversation(ctx, c); err != nil {
			return archived, fmt.Errorf("archiving %s: %w", c.SessionID, err)
		}
		archived++
	}
	return archived, nil
}

// RegisterListener subscribes to an event by name.
func (m *Manager) RegisterListener(event string, l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[event] = append(m.listeners[event], l)
}

// UnregisterListener drops all listeners for an event.
func (m *Manager) UnregisterListener(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, event)
}

// dispatch runs listeners serially. A listener error or panic is
// logged and never reaches the caller.
func (m *Manager) dispatch(event string, payload map[string]any) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners[event]))
	copy(listeners, m.listeners[event])
	m.mu.Unlock()

	log := logging.Get(logging.CategoryConversation)
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warnw("listener panicked", "event", event, "panic", r)
				}
			}()
			if err := l(event, payload); err != nil {
				log.Warnw("listener failed", "event", event, "error", err)
			}
		}()
	}
}
