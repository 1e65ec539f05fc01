package model

import (
	"testing"
	"time"
)

func TestEncodeDecodeMemory(t *testing.T) {
	m := &MemoryItem{
		ID:          "mem-1",
		DeviceID:    "dev-a",
		UserMessage: "what is the capital of france",
		BotResponse: "Paris",
		Embedding:   []float32{0.1, 0.2, 0.3},
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Tags:        []string{"geography"},
	}

	data, err := EncodeItem(ItemMemory, m)
	if err != nil {
		t.Fatalf("EncodeItem failed: %v", err)
	}

	got, err := DecodeItem(ItemMemory, data)
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}
	back, ok := got.(*MemoryItem)
	if !ok {
		t.Fatalf("expected *MemoryItem, got %T", got)
	}
	if back.ID != m.ID || back.BotResponse != m.BotResponse {
		t.Errorf("round-trip mismatch: %+v", back)
	}
	if len(back.Embedding) != 3 || back.Embedding[1] != 0.2 {
		t.Errorf("embedding did not survive the round trip: %v", back.Embedding)
	}
}

func TestEncodeItemTypeMismatch(t *testing.T) {
	_, err := EncodeItem(ItemDevice, &MemoryItem{ID: "x"})
	if err == nil {
		t.Fatal("expected error encoding a memory as a device")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := DecodeItem(ItemType("conversation"), []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for unknown item type")
	}
}

func TestConversationTotalTokens(t *testing.T) {
	c := &Conversation{
		Turns: []Turn{
			{TokensUsed: 10},
			{TokensUsed: 20},
		},
	}
	if got := c.TotalTokens(); got != 30 {
		t.Errorf("TotalTokens = %d, want 30", got)
	}
}
