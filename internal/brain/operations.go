package brain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hivebrain/internal/logging"
	"hivebrain/internal/model"
	"hivebrain/internal/store"
)

// overFetchFactor is how many extra candidates are requested from
// storage before the min-similarity filter trims the result.
const overFetchFactor = 2

// StoreMemory writes one remembered exchange and returns its id. The
// write refreshes this device's heartbeat and, with sync enabled,
// enqueues a change record for the fleet.
func (b *Brain) StoreMemory(ctx context.Context, userMessage, botResponse string, embedding []float32, memContext string, tags []string, metadata map[string]any) (string, error) {
	if err := b.ready(); err != nil {
		return "", err
	}

	m := &model.MemoryItem{
		ID:          uuid.NewString(),
		DeviceID:    b.device.DeviceID,
		UserMessage: userMessage,
		BotResponse: botResponse,
		Context:     memContext,
		Embedding:   embedding,
		Timestamp:   time.Now().UTC(),
		Tags:        tags,
		Metadata:    metadata,
	}
	if err := b.storage.StoreMemory(ctx, m); err != nil {
		return "", fmt.Errorf("storing memory: %w", err)
	}

	b.enqueueSync(ctx, model.ItemMemory, m.ID, m)
	if err := b.heartbeat(ctx); err != nil {
		return "", err
	}
	return m.ID, nil
}

// StoreKnowledge writes one knowledge chunk and returns its id.
func (b *Brain) StoreKnowledge(ctx context.Context, content string, embedding []float32, source string, chunkIndex, totalChunks int, tags []string, metadata map[string]any) (string, error) {
	if err := b.ready(); err != nil {
		return "", err
	}

	k := &model.KnowledgeItem{
		ID:          uuid.NewString(),
		DeviceID:    b.device.DeviceID,
		Content:     content,
		Source:      source,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Embedding:   embedding,
		Timestamp:   time.Now().UTC(),
		Tags:        tags,
		Metadata:    metadata,
	}
	if err := b.storage.StoreKnowledge(ctx, k); err != nil {
		return "", fmt.Errorf("storing knowledge: %w", err)
	}

	b.enqueueSync(ctx, model.ItemKnowledge, k.ID, k)
	if err := b.heartbeat(ctx); err != nil {
		return "", err
	}
	return k.ID, nil
}

// enqueueSync records a pending create operation for the fleet. A
// failed enqueue is logged, not surfaced: the write itself succeeded
// and the record will flow on a later store.
func (b *Brain) enqueueSync(ctx context.Context, itemType model.ItemType, itemID string, item any) {
	if !b.cfg.Brain.EnableSync {
		return
	}

	data, err := model.EncodeItem(itemType, item)
	if err != nil {
		logging.Get(logging.CategorySync).Warnw("sync payload encode failed", "item", itemID, "error", err)
		return
	}
	op := &model.SyncOperation{
		OperationID:   uuid.NewString(),
		OperationType: model.SyncOpCreate,
		ItemType:      itemType,
		ItemID:        itemID,
		DeviceID:      b.device.DeviceID,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}
	if err := b.storage.StoreSyncOperation(ctx, op); err != nil {
		logging.Get(logging.CategorySync).Warnw("sync enqueue failed", "item", itemID, "error", err)
	}
}

// RetrieveMemories runs similarity retrieval over the fleet's
// memories. Storage is asked for 2·topK candidates; records scoring
// under minSimilarity are dropped and the first topK survivors
// returned.
func (b *Brain) RetrieveMemories(ctx context.Context, query []float32, topK int, deviceFilter string, minSimilarity float64) ([]*model.MemoryItem, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = b.cfg.Brain.DefaultTopK
	}

	candidates, err := b.storage.RetrieveMemories(ctx, query, topK*overFetchFactor, deviceFilter)
	if err != nil {
		return nil, fmt.Errorf("retrieving memories: %w", err)
	}

	out := make([]*model.MemoryItem, 0, topK)
	for _, m := range candidates {
		if m.RelevanceScore == nil || *m.RelevanceScore < minSimilarity {
			continue
		}
		out = append(out, m)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// RetrieveKnowledge is the knowledge counterpart of RetrieveMemories,
// with an optional source filter.
func (b *Brain) RetrieveKnowledge(ctx context.Context, query []float32, topK int, sourceFilter string, minSimilarity float64) ([]*model.KnowledgeItem, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = b.cfg.Brain.DefaultTopK
	}

	candidates, err := b.storage.RetrieveKnowledge(ctx, query, topK*overFetchFactor, sourceFilter)
	if err != nil {
		return nil, fmt.Errorf("retrieving knowledge: %w", err)
	}

	out := make([]*model.KnowledgeItem, 0, topK)
	for _, k := range candidates {
		if k.RelevanceScore == nil || *k.RelevanceScore < minSimilarity {
			continue
		}
		out = append(out, k)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// EmbedText runs the configured embedding engine. Empty text maps to
// the zero vector without a provider call.
func (b *Brain) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.embedder.Embed(ctx, text)
}

// RememberExchange embeds the user message and stores the exchange in
// one step.
func (b *Brain) RememberExchange(ctx context.Context, userMessage, botResponse string, tags []string, metadata map[string]any) (string, error) {
	if err := b.ready(); err != nil {
		return "", err
	}
	emb, err := b.embedder.Embed(ctx, userMessage)
	if err != nil {
		return "", fmt.Errorf("embedding exchange: %w", err)
	}
	return b.StoreMemory(ctx, userMessage, botResponse, emb, "", tags, metadata)
}

// RecallByText embeds the query text and retrieves matching memories
// with the configured defaults.
func (b *Brain) RecallByText(ctx context.Context, query string, topK int) ([]*model.MemoryItem, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	emb, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return b.RetrieveMemories(ctx, emb, topK, "", b.cfg.Brain.MinSimilarity)
}

// GetMemory, GetKnowledge and the deletes are storage pass-throughs.
// Missing ids yield (nil, nil).

func (b *Brain) GetMemory(ctx context.Context, id string) (*model.MemoryItem, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.storage.GetMemoryByID(ctx, id)
}

func (b *Brain) GetKnowledge(ctx context.Context, id string) (*model.KnowledgeItem, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.storage.GetKnowledgeByID(ctx, id)
}

func (b *Brain) DeleteMemory(ctx context.Context, id string) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.storage.DeleteMemory(ctx, id)
}

func (b *Brain) DeleteKnowledge(ctx context.Context, id string) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.storage.DeleteKnowledge(ctx, id)
}

// Conversation pass-throughs. Session semantics (locking, events) live
// in the conversation manager; these go straight to storage.

func (b *Brain) StoreConversation(ctx context.Context, c *model.Conversation) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.storage.StoreConversation(ctx, c)
}

func (b *Brain) LoadConversation(ctx context.Context, sessionID string) (*model.Conversation, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.storage.LoadConversation(ctx, sessionID)
}

func (b *Brain) ListConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.storage.ListConversations(ctx, limit)
}

func (b *Brain) DeleteConversation(ctx context.Context, sessionID string) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.storage.DeleteConversation(ctx, sessionID)
}

// ListDevices returns every fleet member known to storage.
func (b *Brain) ListDevices(ctx context.Context) ([]*model.DeviceContext, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.storage.ListDevices(ctx)
}

// GetDevice returns one fleet member, or (nil, nil) if unknown.
func (b *Brain) GetDevice(ctx context.Context, deviceID string) (*model.DeviceContext, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.storage.GetDevice(ctx, deviceID)
}

// UpdateDeviceContext applies field-wise updates to this device's
// context and re-registers it. Unknown fields are rejected.
func (b *Brain) UpdateDeviceContext(ctx context.Context, updates map[string]any) error {
	if err := b.ready(); err != nil {
		return err
	}

	for field, value := range updates {
		switch field {
		case "specialization":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: specialization must be a string", store.ErrInvalidArgument)
			}
			b.device.Specialization = s
		case "location":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: location must be a string", store.ErrInvalidArgument)
			}
			b.device.Location = s
		case "status":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: status must be a string", store.ErrInvalidArgument)
			}
			b.device.Status = model.DeviceStatus(s)
		case "capabilities":
			caps, ok := value.([]string)
			if !ok {
				return fmt.Errorf("%w: capabilities must be a string slice", store.ErrInvalidArgument)
			}
			b.device.Capabilities = caps
		case "metadata":
			md, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: metadata must be a map", store.ErrInvalidArgument)
			}
			b.device.Metadata = md
		default:
			return fmt.Errorf("%w: unknown device field %q", store.ErrInvalidArgument, field)
		}
	}
	return b.heartbeat(ctx)
}

// Stats is the aggregate view GetMemoryStats returns.
type Stats struct {
	MemoryCount    int                    `json:"memory_count"`
	KnowledgeCount int                    `json:"knowledge_count"`
	DeviceCount    int                    `json:"device_count"`
	Devices        []*model.DeviceContext `json:"devices"`
	ThisDevice     *model.DeviceContext   `json:"this_device"`
}

// GetMemoryStats counts records and lists the fleet.
func (b *Brain) GetMemoryStats(ctx context.Context) (*Stats, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	memories, err := b.storage.GetMemoryCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting memories: %w", err)
	}
	knowledge, err := b.storage.GetKnowledgeCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting knowledge: %w", err)
	}
	devices, err := b.storage.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	return &Stats{
		MemoryCount:    memories,
		KnowledgeCount: knowledge,
		DeviceCount:    len(devices),
		Devices:        devices,
		ThisDevice:     b.device,
	}, nil
}

// CheckContextSize delegates to the summarizer. Without one the answer
// is always (false, "").
func (b *Brain) CheckContextSize(ctx context.Context, text string) (bool, string, error) {
	if err := b.ready(); err != nil {
		return false, "", err
	}
	if b.summary == nil {
		return false, "", nil
	}
	return b.summary.CheckContextSize(ctx, text)
}
