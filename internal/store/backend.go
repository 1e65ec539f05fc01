// Package store is the durable substrate of the communal brain: typed
// CRUD plus similarity retrieval over memories, knowledge, devices,
// sync operations, and conversations. The reference backend is a
// single-file SQLite store in WAL mode; retrieval is brute-force over a
// bounded, recency-ordered candidate set reranked by cosine similarity.
package store

import (
	"context"

	"hivebrain/internal/model"
)

// candidateMultiplier bounds the recency window scanned before exact
// reranking: at most candidateMultiplier*topK rows, newest first.
const candidateMultiplier = 10

// Backend is the contract every storage implementation satisfies.
// Missing records on point reads yield (nil, nil); only
// MarkSyncOperationResolved treats an unknown id as an error.
type Backend interface {
	Initialize(ctx context.Context) error
	Close() error

	StoreMemory(ctx context.Context, m *model.MemoryItem) error
	RetrieveMemories(ctx context.Context, query []float32, topK int, deviceFilter string) ([]*model.MemoryItem, error)
	GetMemoryByID(ctx context.Context, id string) (*model.MemoryItem, error)
	DeleteMemory(ctx context.Context, id string) error
	GetMemoryCount(ctx context.Context) (int, error)

	StoreKnowledge(ctx context.Context, k *model.KnowledgeItem) error
	RetrieveKnowledge(ctx context.Context, query []float32, topK int, sourceFilter string) ([]*model.KnowledgeItem, error)
	GetKnowledgeByID(ctx context.Context, id string) (*model.KnowledgeItem, error)
	DeleteKnowledge(ctx context.Context, id string) error
	GetKnowledgeCount(ctx context.Context) (int, error)

	RegisterDevice(ctx context.Context, d *model.DeviceContext) error
	GetDevice(ctx context.Context, deviceID string) (*model.DeviceContext, error)
	ListDevices(ctx context.Context) ([]*model.DeviceContext, error)
	GetDeviceCount(ctx context.Context) (int, error)

	StoreSyncOperation(ctx context.Context, op *model.SyncOperation) error
	GetPendingSyncOperations(ctx context.Context, deviceID string) ([]*model.SyncOperation, error)
	MarkSyncOperationResolved(ctx context.Context, operationID string) error

	StoreConversation(ctx context.Context, c *model.Conversation) error
	LoadConversation(ctx context.Context, sessionID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]*model.Conversation, error)
	DeleteConversation(ctx context.Context, sessionID string) error
}
