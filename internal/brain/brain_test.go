package brain

import (
	"context"
	"errors"
	"testing"
	"time"

	"hivebrain/internal/config"
	"hivebrain/internal/model"
	"hivebrain/internal/store"
)

// stubEmbedder returns a fixed vector per text, keyed by first byte so
// tests get distinct but deterministic embeddings.
type stubEmbedder struct {
	dims  int
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	v := make([]float32, s.dims)
	if text == "" {
		return v, nil
	}
	v[int(text[0])%s.dims] = 1
	return v, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Name() string    { return "stub" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func newTestBrain(t *testing.T, cfg *config.Config) *Brain {
	t.Helper()
	backend := store.NewSQLiteBackend(":memory:", store.SQLiteOptions{})
	b, err := New(cfg, Deps{
		Storage:  backend,
		Embedder: &stubEmbedder{dims: 4},
		Device: &model.DeviceContext{
			DeviceID:     "testhost_aa:bb:cc:dd:ee:ff",
			HardwareTier: model.TierLaptop,
			Hostname:     "testhost",
			Status:       model.DeviceOnline,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInitializeIsIdempotent(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	if err := b.Initialize(context.Background()); err != nil {
		t.Errorf("second Initialize must be a no-op, got %v", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("double Close must be safe, got %v", err)
	}

	if _, err := b.StoreMemory(ctx, "u", "b", []float32{1, 0, 0, 0}, "", nil, nil); !errors.Is(err, store.ErrNotInitialized) {
		t.Errorf("StoreMemory after Close = %v, want ErrNotInitialized", err)
	}
	if _, err := b.GetMemoryStats(ctx); !errors.Is(err, store.ErrNotInitialized) {
		t.Errorf("GetMemoryStats after Close = %v, want ErrNotInitialized", err)
	}
}

func TestStoreMemoryHeartbeat(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	id, err := b.StoreMemory(ctx, "hello", "hi there", []float32{1, 0, 0, 0}, "", []string{"greeting"}, nil)
	if err != nil {
		t.Fatalf("StoreMemory failed: %v", err)
	}
	if id == "" {
		t.Fatal("id not generated")
	}

	got, err := b.GetMemory(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("GetMemory(%s) = %v, %v", id, got, err)
	}
	if got.UserMessage != "hello" || got.DeviceID != b.DeviceID() {
		t.Errorf("stored memory wrong: %+v", got)
	}

	// The write must refresh this device's registration.
	dev, err := b.GetDevice(ctx, b.DeviceID())
	if err != nil || dev == nil {
		t.Fatalf("device not registered after write: %v", err)
	}
	if dev.LastSeen.Before(before) {
		t.Errorf("last_seen not refreshed: %v", dev.LastSeen)
	}
}

func TestRetrieveMemoriesMinSimilarity(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	vectors := map[string][]float32{
		"exact":      {1, 0, 0, 0},
		"close":      {0.9, 0.1, 0, 0},
		"orthogonal": {0, 0, 1, 0},
	}
	for name, v := range vectors {
		if _, err := b.StoreMemory(ctx, name, "r", v, "", nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	// Orthogonal scores (0+1)/2 = 0.5; a 0.6 floor keeps the other two.
	got, err := b.RetrieveMemories(ctx, []float32{1, 0, 0, 0}, 3, "", 0.6)
	if err != nil {
		t.Fatalf("RetrieveMemories failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d memories, want 2 after similarity filter", len(got))
	}
	if got[0].UserMessage != "exact" || got[1].UserMessage != "close" {
		t.Errorf("ranking wrong: %s, %s", got[0].UserMessage, got[1].UserMessage)
	}

	// topK trims after the filter.
	got, err = b.RetrieveMemories(ctx, []float32{1, 0, 0, 0}, 1, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserMessage != "exact" {
		t.Errorf("topK=1 should return the single best match, got %+v", got)
	}
}

func TestRetrieveKnowledgeSourceFilter(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	for _, src := range []string{"manual.pdf", "wiki"} {
		if _, err := b.StoreKnowledge(ctx, "content "+src, []float32{1, 0, 0, 0}, src, 0, 1, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := b.RetrieveKnowledge(ctx, []float32{1, 0, 0, 0}, 5, "wiki", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Source != "wiki" {
		t.Errorf("source filter violated: %+v", got)
	}
}

func TestSyncEnqueueOnWrites(t *testing.T) {
	cfg := testConfig(t)
	cfg.Brain.EnableSync = true
	b := newTestBrain(t, cfg)
	ctx := context.Background()

	if _, err := b.StoreMemory(ctx, "u", "b", []float32{1, 0, 0, 0}, "", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.StoreKnowledge(ctx, "c", []float32{0, 1, 0, 0}, "src", 0, 1, nil, nil); err != nil {
		t.Fatal(err)
	}

	pending, err := b.storage.GetPendingSyncOperations(ctx, b.DeviceID())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending sync ops, want 2", len(pending))
	}
	seen := map[model.ItemType]bool{}
	for _, op := range pending {
		seen[op.ItemType] = true
	}
	if !seen[model.ItemMemory] || !seen[model.ItemKnowledge] {
		t.Errorf("expected one memory and one knowledge op, got %+v", pending)
	}
	for _, op := range pending {
		if op.OperationType != model.SyncOpCreate || op.Resolved {
			t.Errorf("op shape wrong: %+v", op)
		}
		if len(op.Data) == 0 {
			t.Error("op payload missing")
		}
	}
}

func TestNoSyncEnqueueWhenDisabled(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	if _, err := b.StoreMemory(ctx, "u", "b", []float32{1, 0, 0, 0}, "", nil, nil); err != nil {
		t.Fatal(err)
	}
	pending, err := b.storage.GetPendingSyncOperations(ctx, b.DeviceID())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("sync disabled but %d ops enqueued", len(pending))
	}
}

func TestRememberAndRecallByText(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	id, err := b.RememberExchange(ctx, "what is the wifi password", "it is on the router", nil, nil)
	if err != nil {
		t.Fatalf("RememberExchange failed: %v", err)
	}

	// The stub keys on the first byte, so the same question embeds
	// identically.
	got, err := b.RecallByText(ctx, "what is the wifi password", 1)
	if err != nil {
		t.Fatalf("RecallByText failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Errorf("recall missed the stored exchange: %+v", got)
	}
}

func TestGetMemoryStats(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.StoreMemory(ctx, "u", "b", []float32{1, 0, 0, 0}, "", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.StoreKnowledge(ctx, "c", []float32{0, 1, 0, 0}, "src", 0, 1, nil, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := b.GetMemoryStats(ctx)
	if err != nil {
		t.Fatalf("GetMemoryStats failed: %v", err)
	}
	if stats.MemoryCount != 3 || stats.KnowledgeCount != 1 || stats.DeviceCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ThisDevice == nil || stats.ThisDevice.DeviceID != b.DeviceID() {
		t.Errorf("this_device wrong: %+v", stats.ThisDevice)
	}
}

func TestUpdateDeviceContext(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	err := b.UpdateDeviceContext(ctx, map[string]any{
		"specialization": "coding",
		"location":       "office",
	})
	if err != nil {
		t.Fatalf("UpdateDeviceContext failed: %v", err)
	}

	dev, err := b.GetDevice(ctx, b.DeviceID())
	if err != nil || dev == nil {
		t.Fatal(err)
	}
	if dev.Specialization != "coding" || dev.Location != "office" {
		t.Errorf("updates not persisted: %+v", dev)
	}

	if err := b.UpdateDeviceContext(ctx, map[string]any{"bogus": 1}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("unknown field should be rejected, got %v", err)
	}
}

func TestCheckContextSizeWithoutSummarizer(t *testing.T) {
	b := newTestBrain(t, testConfig(t))

	needs, summary, err := b.CheckContextSize(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	if needs || summary != "" {
		t.Errorf("without a summarizer the answer is always (false, \"\"), got (%v, %q)", needs, summary)
	}
}

func TestConversationPassThrough(t *testing.T) {
	b := newTestBrain(t, testConfig(t))
	ctx := context.Background()

	conv := &model.Conversation{
		SessionID:   "nano_11112222",
		ChatbotName: "nano",
		DeviceID:    b.DeviceID(),
		StartTime:   time.Now().UTC(),
		Status:      model.ConversationActive,
	}
	if err := b.StoreConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	got, err := b.LoadConversation(ctx, conv.SessionID)
	if err != nil || got == nil {
		t.Fatalf("LoadConversation = %v, %v", got, err)
	}
	list, err := b.ListConversations(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListConversations = %d, %v", len(list), err)
	}
	if err := b.DeleteConversation(ctx, conv.SessionID); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.LoadConversation(ctx, conv.SessionID); got != nil {
		t.Error("conversation should be gone after delete")
	}
}
