package store

import (
	"errors"
	"math"
	"testing"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	vectors := [][]float32{
		{},
		{0},
		{1, -1, 0.5},
		{0.1, 0.2, 0.3, 0.4},
		{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32},
	}

	for _, v := range vectors {
		blob := EncodeEmbedding(v)
		if len(blob) != 4*len(v) {
			t.Errorf("blob length = %d, want %d", len(blob), 4*len(v))
		}
		back, err := DecodeEmbedding(blob)
		if err != nil {
			t.Fatalf("DecodeEmbedding failed: %v", err)
		}
		if len(back) != len(v) {
			t.Fatalf("decoded length = %d, want %d", len(back), len(v))
		}
		for i := range v {
			if math.Float32bits(back[i]) != math.Float32bits(v[i]) {
				t.Errorf("component %d not bit-exact: %v vs %v", i, back[i], v[i])
			}
		}
	}
}

func TestDecodeEmbeddingBadLength(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1, 2, 3})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
