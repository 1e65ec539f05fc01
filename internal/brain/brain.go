// Package brain is the public façade of the communal memory: one
// object wiring storage, the device registry, the conversation
// manager, and the background workers behind a small method surface.
package brain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hivebrain/internal/config"
	"hivebrain/internal/conversation"
	"hivebrain/internal/device"
	"hivebrain/internal/embedding"
	"hivebrain/internal/llm"
	"hivebrain/internal/logging"
	"hivebrain/internal/model"
	"hivebrain/internal/store"
	"hivebrain/internal/summarizer"
	"hivebrain/internal/syncer"
)

// Deps lets callers inject pre-built collaborators. Nil fields are
// constructed from the config; tests inject in-memory backends and
// fakes here.
type Deps struct {
	Storage   store.Backend
	Embedder  embedding.Engine
	Generator llm.Generator
	Device    *model.DeviceContext
	SyncFunc  syncer.SyncFunc
}

// Brain is the communal memory façade. All operations require
// Initialize first; after Close every operation fails with
// ErrNotInitialized.
type Brain struct {
	cfg *config.Config

	storage   store.Backend
	embedder  embedding.Engine
	generator llm.Generator
	convs     *conversation.Manager
	summary   *summarizer.Agent
	sync      *syncer.Syncer
	device    *model.DeviceContext

	mu          sync.Mutex
	initialized bool
}

// New assembles a brain from config plus optional injected deps. No
// I/O happens until Initialize.
func New(cfg *config.Config, deps Deps) (*Brain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", store.ErrInvalidArgument)
	}

	b := &Brain{
		cfg:       cfg,
		storage:   deps.Storage,
		embedder:  deps.Embedder,
		generator: deps.Generator,
		device:    deps.Device,
	}

	if b.storage == nil {
		primary := store.NewSQLiteBackend(cfg.Storage.LocalDBPath, store.SQLiteOptions{
			EnableWAL: cfg.Storage.EnableWAL,
			CacheSize: cfg.Storage.CacheSize,
		})
		var cache store.Backend
		if cfg.Storage.CacheDBPath != "" {
			cache = store.NewSQLiteBackend(cfg.Storage.CacheDBPath, store.SQLiteOptions{
				EnableWAL: cfg.Storage.EnableWAL,
				CacheSize: cfg.Storage.CacheSize,
			})
		}
		b.storage = store.NewAbstraction(primary, cache)
	}

	if b.embedder == nil {
		engine, err := embedding.NewEngine(cfg.Embedding, cfg.EmbeddingTimeout())
		if err != nil {
			return nil, fmt.Errorf("building embedding engine: %w", err)
		}
		b.embedder = engine
	}

	if b.generator == nil && (cfg.Brain.EnableSummarizer || cfg.LLM.APIKey != "") {
		b.generator = llm.NewOpenAIClient(cfg.LLM, cfg.LLMTimeout())
	}

	if b.device == nil {
		b.device = device.LocalContext()
	}

	b.convs = conversation.NewManager(b.storage, b.device.DeviceID)
	b.sync = syncer.New(b.storage, b.device.DeviceID, cfg.SyncInterval(), deps.SyncFunc)

	if cfg.Brain.EnableSummarizer && b.generator != nil {
		agent, err := summarizer.NewAgent(cfg.Summarizer, cfg.MonitoringInterval(), b.generator, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("building summarizer: %w", err)
		}
		b.summary = agent
	}

	return b, nil
}

// Initialize opens storage, registers this device, and starts the
// enabled workers. Calling it on an initialized brain is a no-op.
func (b *Brain) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}

	log := logging.Get(logging.CategoryBrain)
	if err := b.storage.Initialize(ctx); err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	b.device.LastSeen = time.Now().UTC()
	b.device.Status = model.DeviceOnline
	if err := b.storage.RegisterDevice(ctx, b.device); err != nil {
		b.storage.Close()
		return fmt.Errorf("registering device %s: %w", b.device.DeviceID, err)
	}

	if b.summary != nil {
		b.summary.StartBackgroundMonitoring()
	}
	if b.cfg.Brain.EnableSync {
		b.sync.Start()
	}

	b.initialized = true
	log.Infow("brain initialized",
		"device_id", b.device.DeviceID,
		"tier", b.device.HardwareTier,
		"sync", b.cfg.Brain.EnableSync,
		"summarizer", b.summary != nil,
	)
	return nil
}

// Close stops the workers and closes storage. Subsequent operations
// fail with ErrNotInitialized. Closing twice is safe.
func (b *Brain) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}

	if b.summary != nil {
		b.summary.StopBackgroundMonitoring()
	}
	b.sync.Stop()

	err := b.storage.Close()
	b.initialized = false
	if err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}
	return nil
}

// ready gates every public operation on the initialized flag.
func (b *Brain) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return store.ErrNotInitialized
	}
	return nil
}

// DeviceID returns this device's identity.
func (b *Brain) DeviceID() string { return b.device.DeviceID }

// Conversations exposes the session manager for listener registration
// and direct session operations.
func (b *Brain) Conversations() *conversation.Manager { return b.convs }

// Syncer exposes the sync worker for ForceSync and status checks.
func (b *Brain) Syncer() *syncer.Syncer { return b.sync }

// heartbeat refreshes last_seen and re-registers this device. Every
// write path calls it before returning success.
func (b *Brain) heartbeat(ctx context.Context) error {
	b.device.LastSeen = time.Now().UTC()
	b.device.Status = model.DeviceOnline
	if err := b.storage.RegisterDevice(ctx, b.device); err != nil {
		return fmt.Errorf("device heartbeat: %w", err)
	}
	return nil
}
