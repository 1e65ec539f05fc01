package store

import (
	"context"

	"golang.org/x/sync/errgroup"

	"hivebrain/internal/logging"
	"hivebrain/internal/model"
)

// Abstraction fans out over a primary backend and an optional cache
// backend with the same interface. Writes go to primary first, then to
// the cache best-effort; cache failures are logged, never surfaced.
// Similarity reads try the cache first and fall back to primary,
// opportunistically populating the cache from the results. Point reads
// and mutations bypass the cache entirely. No reconciliation happens
// here; the cache is expected to be reseeded from primary.
type Abstraction struct {
	primary Backend
	cache   Backend
}

var _ Backend = (*Abstraction)(nil)

// NewAbstraction wraps a primary and an optional cache. cache may be
// nil.
func NewAbstraction(primary Backend, cache Backend) *Abstraction {
	return &Abstraction{primary: primary, cache: cache}
}

// Initialize opens both backends concurrently. A cache that fails to
// open is dropped with a log line rather than failing the whole store.
func (a *Abstraction) Initialize(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.primary.Initialize(gctx) })

	var cacheErr error
	if a.cache != nil {
		cache := a.cache
		g.Go(func() error {
			cacheErr = cache.Initialize(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if cacheErr != nil {
		logging.Get(logging.CategoryStore).Warnw("cache backend failed to open, continuing without it", "error", cacheErr)
		a.cache = nil
	}
	return nil
}

// Close closes both backends; the primary's error wins.
func (a *Abstraction) Close() error {
	var g errgroup.Group
	g.Go(a.primary.Close)
	if a.cache != nil {
		cache := a.cache
		g.Go(func() error {
			if err := cache.Close(); err != nil {
				logging.Get(logging.CategoryStore).Warnw("cache backend close failed", "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *Abstraction) cacheWrite(op string, err error) {
	if err != nil {
		logging.Get(logging.CategoryStore).Debugw("best-effort cache write failed", "op", op, "error", err)
	}
}

func (a *Abstraction) StoreMemory(ctx context.Context, m *model.MemoryItem) error {
	if err := a.primary.StoreMemory(ctx, m); err != nil {
		return err
	}
	if a.cache != nil {
		a.cacheWrite("store_memory", a.cache.StoreMemory(ctx, m))
	}
	return nil
}

func (a *Abstraction) RetrieveMemories(ctx context.Context, query []float32, topK int, deviceFilter string) ([]*model.MemoryItem, error) {
	if a.cache != nil {
		cached, err := a.cache.RetrieveMemories(ctx, query, topK, deviceFilter)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil {
			logging.Get(logging.CategoryStore).Debugw("cache retrieve failed", "error", err)
		}
	}

	results, err := a.primary.RetrieveMemories(ctx, query, topK, deviceFilter)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		for _, m := range results {
			a.cacheWrite("populate_memory", a.cache.StoreMemory(ctx, m))
		}
	}
	return results, nil
}

func (a *Abstraction) GetMemoryByID(ctx context.Context, id string) (*model.MemoryItem, error) {
	return a.primary.GetMemoryByID(ctx, id)
}

func (a *Abstraction) DeleteMemory(ctx context.Context, id string) error {
	return a.primary.DeleteMemory(ctx, id)
}

func (a *Abstraction) GetMemoryCount(ctx context.Context) (int, error) {
	return a.primary.GetMemoryCount(ctx)
}

func (a *Abstraction) StoreKnowledge(ctx context.Context, k *model.KnowledgeItem) error {
	if err := a.primary.StoreKnowledge(ctx, k); err != nil {
		return err
	}
	if a.cache != nil {
		a.cacheWrite("store_knowledge", a.cache.StoreKnowledge(ctx, k))
	}
	return nil
}

func (a *Abstraction) RetrieveKnowledge(ctx context.Context, query []float32, topK int, sourceFilter string) ([]*model.KnowledgeItem, error) {
	if a.cache != nil {
		cached, err := a.cache.RetrieveKnowledge(ctx, query, topK, sourceFilter)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil {
			logging.Get(logging.CategoryStore).Debugw("cache retrieve failed", "error", err)
		}
	}

	results, err := a.primary.RetrieveKnowledge(ctx, query, topK, sourceFilter)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		for _, k := range results {
			a.cacheWrite("populate_knowledge", a.cache.StoreKnowledge(ctx, k))
		}
	}
	return results, nil
}

func (a *Abstraction) GetKnowledgeByID(ctx context.Context, id string) (*model.KnowledgeItem, error) {
	return a.primary.GetKnowledgeByID(ctx, id)
}

func (a *Abstraction) DeleteKnowledge(ctx context.Context, id string) error {
	return a.primary.DeleteKnowledge(ctx, id)
}

func (a *Abstraction) GetKnowledgeCount(ctx context.Context) (int, error) {
	return a.primary.GetKnowledgeCount(ctx)
}

func (a *Abstraction) RegisterDevice(ctx context.Context, d *model.DeviceContext) error {
	if err := a.primary.RegisterDevice(ctx, d); err != nil {
		return err
	}
	if a.cache != nil {
		a.cacheWrite("register_device", a.cache.RegisterDevice(ctx, d))
	}
	return nil
}

func (a *Abstraction) GetDevice(ctx context.Context, deviceID string) (*model.DeviceContext, error) {
	return a.primary.GetDevice(ctx, deviceID)
}

func (a *Abstraction) ListDevices(ctx context.Context) ([]*model.DeviceContext, error) {
	return a.primary.ListDevices(ctx)
}

func (a *Abstraction) GetDeviceCount(ctx context.Context) (int, error) {
	return a.primary.GetDeviceCount(ctx)
}

func (a *Abstraction) StoreSyncOperation(ctx context.Context, op *model.SyncOperation) error {
	return a.primary.StoreSyncOperation(ctx, op)
}

func (a *Abstraction) GetPendingSyncOperations(ctx context.Context, deviceID string) ([]*model.SyncOperation, error) {
	return a.primary.GetPendingSyncOperations(ctx, deviceID)
}

func (a *Abstraction) MarkSyncOperationResolved(ctx context.Context, operationID string) error {
	return a.primary.MarkSyncOperationResolved(ctx, operationID)
}

func (a *Abstraction) StoreConversation(ctx context.Context, c *model.Conversation) error {
	return a.primary.StoreConversation(ctx, c)
}

func (a *Abstraction) LoadConversation(ctx context.Context, sessionID string) (*model.Conversation, error) {
	return a.primary.LoadConversation(ctx, sessionID)
}

func (a *Abstraction) ListConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	return a.primary.ListConversations(ctx, limit)
}

func (a *Abstraction) DeleteConversation(ctx context.Context, sessionID string) error {
	return a.primary.DeleteConversation(ctx, sessionID)
}
