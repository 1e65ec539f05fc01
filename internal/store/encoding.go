package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embeddings are persisted as packed little-endian float32, 4 bytes per
// component. The encoding must round-trip bit-exactly; similarity math
// depends on getting the same floats back out.

// EncodeEmbedding packs a vector into its storage representation.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks a stored blob back into a vector.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding blob length %d not a multiple of 4", ErrInvalidArgument, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
