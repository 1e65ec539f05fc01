package model

import (
	"encoding/json"
	"fmt"
)

// EncodeItem serializes a record for a sync payload. The concrete type
// must match the declared ItemType; anything else is rejected rather
// than silently encoded.
func EncodeItem(itemType ItemType, item any) ([]byte, error) {
	switch itemType {
	case ItemMemory:
		if _, ok := item.(*MemoryItem); !ok {
			return nil, fmt.Errorf("encode %s: got %T", itemType, item)
		}
	case ItemKnowledge:
		if _, ok := item.(*KnowledgeItem); !ok {
			return nil, fmt.Errorf("encode %s: got %T", itemType, item)
		}
	case ItemDevice:
		if _, ok := item.(*DeviceContext); !ok {
			return nil, fmt.Errorf("encode %s: got %T", itemType, item)
		}
	default:
		return nil, fmt.Errorf("encode: unknown item type %q", itemType)
	}
	return json.Marshal(item)
}

// DecodeItem deserializes a sync payload back into its record type.
// Returns *MemoryItem, *KnowledgeItem, or *DeviceContext.
func DecodeItem(itemType ItemType, data []byte) (any, error) {
	switch itemType {
	case ItemMemory:
		var m MemoryItem
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", itemType, err)
		}
		return &m, nil
	case ItemKnowledge:
		var k KnowledgeItem
		if err := json.Unmarshal(data, &k); err != nil {
			return nil, fmt.Errorf("decode %s: %w", itemType, err)
		}
		return &k, nil
	case ItemDevice:
		var d DeviceContext
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", itemType, err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("decode: unknown item type %q", itemType)
	}
}
