// Package model defines the record types shared by the storage layer,
// the brain façade, and the conversation manager. Records are owned by
// the storage backend; everything else holds borrowed views.
package model

import "time"

// HardwareTier is the coarse hardware class of a device.
type HardwareTier string

const (
	TierRaspberryPi HardwareTier = "raspberry_pi"
	TierLaptop      HardwareTier = "laptop"
	TierWorkstation HardwareTier = "workstation"
	TierServer      HardwareTier = "server"
	TierCloud       HardwareTier = "cloud"
)

// DeviceStatus reflects the last known state of a device.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceSyncing DeviceStatus = "syncing"
	DeviceError   DeviceStatus = "error"
)

// ConversationStatus tracks a session's lifecycle.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
	ConversationArchived  ConversationStatus = "archived"
)

// SyncOpType is the kind of change a SyncOperation carries.
type SyncOpType string

const (
	SyncOpCreate SyncOpType = "create"
	SyncOpUpdate SyncOpType = "update"
	SyncOpDelete SyncOpType = "delete"
)

// ItemType identifies which record type a sync payload holds.
type ItemType string

const (
	ItemMemory    ItemType = "memory"
	ItemKnowledge ItemType = "knowledge"
	ItemDevice    ItemType = "device"
)

// MemoryItem is one remembered exchange: a user message, the response
// given, and the embedding the pair was stored under.
type MemoryItem struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Context     string    `json:"context,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// RelevanceScore is populated on retrieval only; it is never
	// stored authoritatively. Nil means the item did not come from a
	// similarity query; a real score can legitimately be 0.0.
	RelevanceScore *float64 `json:"relevance_score,omitempty"`

	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// KnowledgeItem is one chunk of ingested reference material.
type KnowledgeItem struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	RelevanceScore *float64 `json:"relevance_score,omitempty"`

	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeviceContext describes one member of the fleet.
type DeviceContext struct {
	DeviceID       string         `json:"device_id"`
	HardwareTier   HardwareTier   `json:"hardware_tier"`
	Capabilities   []string       `json:"capabilities,omitempty"`
	Specialization string         `json:"specialization,omitempty"`
	Location       string         `json:"location,omitempty"`
	Hostname       string         `json:"hostname,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	LastSeen       time.Time      `json:"last_seen"`
	Status         DeviceStatus   `json:"status"`
	Version        string         `json:"version,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SyncOperation is a pending change record destined for another device.
type SyncOperation struct {
	OperationID   string     `json:"operation_id"`
	OperationType SyncOpType `json:"operation_type"`
	ItemType      ItemType   `json:"item_type"`
	ItemID        string     `json:"item_id"`
	DeviceID      string     `json:"device_id"`
	Timestamp     time.Time  `json:"timestamp"`
	Data          []byte     `json:"data,omitempty"`
	Resolved      bool       `json:"resolved"`
}

// Turn is one user/assistant exchange inside a conversation.
type Turn struct {
	TurnID      string         `json:"turn_id"`
	Timestamp   time.Time      `json:"timestamp"`
	UserMessage string         `json:"user_message"`
	BotResponse string         `json:"bot_response"`
	TokensUsed  int            `json:"tokens_used"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Conversation is a full session: identity, lifecycle, and the ordered
// turn list. Turns are append-only while the session is active.
type Conversation struct {
	SessionID   string             `json:"session_id"`
	ChatbotName string             `json:"chatbot_name"`
	DeviceID    string             `json:"device_id"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     *time.Time         `json:"end_time,omitempty"`
	Status      ConversationStatus `json:"status"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Turns       []Turn             `json:"turns"`
}

// TotalTokens sums tokens_used across all turns.
func (c *Conversation) TotalTokens() int {
	total := 0
	for _, t := range c.Turns {
		total += t.TokensUsed
	}
	return total
}
