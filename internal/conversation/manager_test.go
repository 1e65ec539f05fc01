package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"hivebrain/internal/model"
	"hivebrain/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.SQLiteBackend) {
	t.Helper()
	b := store.NewSQLiteBackend(":memory:", store.SQLiteOptions{})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("backend init failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return NewManager(b, "dev-test"), b
}

func TestConversationLifecycle(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()

	// Start, two turns, summary, end, reload.
	sid, err := m.StartConversation(ctx, "nano", "")
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	if !strings.HasPrefix(sid, "nano_") || len(sid) != len("nano_")+8 {
		t.Errorf("generated session id has wrong shape: %q", sid)
	}

	if _, err := m.AddTurn(ctx, sid, "u1", "b1", 10, nil); err != nil {
		t.Fatalf("AddTurn failed: %v", err)
	}
	if _, err := m.AddTurn(ctx, sid, "u2", "b2", 20, nil); err != nil {
		t.Fatalf("AddTurn failed: %v", err)
	}

	sum, err := m.GetConversationSummary(ctx, sid)
	if err != nil {
		t.Fatalf("GetConversationSummary failed: %v", err)
	}
	if sum.TotalTokens != 30 || sum.TotalTurns != 2 {
		t.Errorf("summary = %+v, want 30 tokens over 2 turns", sum)
	}
	if sum.Status != "active" {
		t.Errorf("status = %q, want active", sum.Status)
	}
	if sum.DurationSeconds == nil {
		t.Error("duration should be set once turns exist")
	}
	if sum.AverageTokensPerTurn != 15 {
		t.Errorf("average tokens per turn = %v, want 15", sum.AverageTokensPerTurn)
	}

	if err := m.EndConversation(ctx, sid); err != nil {
		t.Fatalf("EndConversation failed: %v", err)
	}

	reloaded, err := b.LoadConversation(ctx, sid)
	if err != nil || reloaded == nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Status != model.ConversationCompleted || reloaded.EndTime == nil {
		t.Errorf("ended conversation not persisted correctly: %+v", reloaded)
	}
}

func TestEndConversationUnknownIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.EndConversation(context.Background(), "ghost_12345678"); err != nil {
		t.Errorf("ending an unknown session must do nothing, got %v", err)
	}
}

func TestAddTurnReconstructsUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	turn, err := m.AddTurn(ctx, "pico_cafebabe", "hello", "hi", 5, nil)
	if err != nil {
		t.Fatalf("AddTurn failed: %v", err)
	}
	if turn.TurnID == "" {
		t.Error("turn id not generated")
	}

	sum, err := m.GetConversationSummary(ctx, "pico_cafebabe")
	if err != nil {
		t.Fatal(err)
	}
	if sum.ChatbotName != "pico" {
		t.Errorf("chatbot name should derive from session id prefix, got %q", sum.ChatbotName)
	}

	sum2, err := m.GetConversationSummary(ctx, "noprefix")
	if err != nil {
		t.Fatal(err)
	}
	if sum2.ChatbotName != "unknown" {
		t.Errorf("prefix-less session id should yield unknown, got %q", sum2.ChatbotName)
	}
}

func TestAddTurnLoadsPersistedSession(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()

	sid, err := m.StartConversation(ctx, "nano", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddTurn(ctx, sid, "u1", "b1", 1, nil); err != nil {
		t.Fatal(err)
	}

	// A fresh manager sharing the backend must pick the session up
	// from storage, not reconstruct it.
	m2 := NewManager(b, "dev-test")
	if _, err := m2.AddTurn(ctx, sid, "u2", "b2", 2, nil); err != nil {
		t.Fatal(err)
	}
	history, err := m2.GetConversationHistory(ctx, sid, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 turns after reload, got %d", len(history))
	}
}

func TestGetConversationHistoryMaxTurns(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sid, _ := m.StartConversation(ctx, "nano", "")
	for i := 0; i < 5; i++ {
		if _, err := m.AddTurn(ctx, sid, "u", "b", 1, nil); err != nil {
			t.Fatal(err)
		}
	}

	history, err := m.GetConversationHistory(ctx, sid, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("expected last 2 turns, got %d", len(history))
	}
}

func TestConcurrentAddTurnNoLostUpdates(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sid, err := m.StartConversation(ctx, "nano", "")
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	const perWriter = 5
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := m.AddTurn(ctx, sid, "u", "b", 1, nil); err != nil {
					t.Errorf("AddTurn failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	history, err := m.GetConversationHistory(ctx, sid, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != writers*perWriter {
		t.Errorf("lost updates: %d turns, want %d", len(history), writers*perWriter)
	}
}

func TestListenerDispatch(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	events := []string{}
	record := func(event string, payload map[string]any) error {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
		return nil
	}
	m.RegisterListener(EventConversationStarted, record)
	m.RegisterListener(EventTurnAppended, record)
	m.RegisterListener(EventConversationEnded, record)

	// A failing listener must not block the recording one.
	m.RegisterListener(EventTurnAppended, func(event string, payload map[string]any) error {
		return errors.New("listener boom")
	})

	sid, err := m.StartConversation(ctx, "nano", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddTurn(ctx, sid, "u", "b", 1, nil); err != nil {
		t.Fatalf("listener error must not surface: %v", err)
	}
	if err := m.EndConversation(ctx, sid); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{EventConversationStarted, EventTurnAppended, EventConversationEnded}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestUnregisterListener(t *testing.T) {
	m, _ := newTestManager(t)
	fired := false
	m.RegisterListener(EventConversationStarted, func(string, map[string]any) error {
		fired = true
		return nil
	})
	m.UnregisterListener(EventConversationStarted)

	if _, err := m.StartConversation(context.Background(), "nano", ""); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Error("unregistered listener should not fire")
	}
}

func TestLockMapEviction(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sid, err := m.StartConversation(ctx, "nano", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.EndConversation(ctx, sid); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	_, lockHeld := m.locks[sid]
	_, stillActive := m.active[sid]
	m.mu.Unlock()
	if lockHeld {
		t.Error("lock map entry should be evicted on end")
	}
	if stillActive {
		t.Error("active map entry should be removed on end")
	}
}

func TestListAllConversationsMerges(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s1, _ := m.StartConversation(ctx, "nano", "")
	if err := m.EndConversation(ctx, s1); err != nil {
		t.Fatal(err)
	}
	s2, _ := m.StartConversation(ctx, "pico", "")

	all, err := m.ListAllConversations(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]int{}
	for _, c := range all {
		ids[c.SessionID]++
	}
	if ids[s1] != 1 || ids[s2] != 1 {
		t.Errorf("merge/dedupe violated: %v", ids)
	}
}

func TestExportConversationSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sid, _ := m.StartConversation(ctx, "nano", "")
	if _, err := m.AddTurn(ctx, sid, "u", "b", 7, nil); err != nil {
		t.Fatal(err)
	}

	snap, err := m.ExportConversationSnapshot(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if snap["session_id"] != sid {
		t.Errorf("snapshot session_id = %v", snap["session_id"])
	}
	sum, ok := snap["summary"].(*Summary)
	if !ok || sum.TotalTokens != 7 {
		t.Errorf("snapshot summary wrong: %+v", snap["summary"])
	}
	turns, ok := snap["turns"].([]map[string]any)
	if !ok || len(turns) != 1 {
		t.Errorf("snapshot turns wrong: %+v", snap["turns"])
	}
}

func TestCleanupOldConversations(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()

	sid, _ := m.StartConversation(ctx, "nano", "")
	if err := m.EndConversation(ctx, sid); err != nil {
		t.Fatal(err)
	}

	// Push the end time past the cutoff directly in storage.
	conv, _ := b.LoadConversation(ctx, sid)
	old := conv.EndTime.AddDate(0, 0, -30)
	conv.EndTime = &old
	if err := b.StoreConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	n, err := m.CleanupOldConversations(ctx, 7)
	if err != nil {
		t.Fatalf("CleanupOldConversations failed: %v", err)
	}
	if n != 1 {
		t.Errorf("archived %d conversations, want 1", n)
	}
	reloaded, _ := b.LoadConversation(ctx, sid)
	if reloaded.Status != model.ConversationArchived {
		t.Errorf("status = %s, want archived", reloaded.Status)
	}
}
