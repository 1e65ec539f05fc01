package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"hivebrain/internal/model"
	"hivebrain/internal/vectormath"
)

// StoreKnowledge upserts a knowledge chunk by id.
func (s *SQLiteBackend) StoreKnowledge(ctx context.Context, k *model.KnowledgeItem) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if k == nil || k.ID == "" {
		return fmt.Errorf("%w: knowledge id is required", ErrInvalidArgument)
	}
	if k.TotalChunks > 0 && (k.ChunkIndex < 0 || k.ChunkIndex >= k.TotalChunks) {
		return fmt.Errorf("%w: chunk_index %d out of range [0,%d)", ErrInvalidArgument, k.ChunkIndex, k.TotalChunks)
	}

	tags, err := marshalJSON(k.Tags, "[]")
	if err != nil {
		return err
	}
	meta, err := marshalJSON(k.Metadata, "{}")
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO knowledge
		(id, device_id, content, source, chunk_index, total_chunks, embedding, timestamp, tags, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.DeviceID, k.Content, k.Source, k.ChunkIndex, k.TotalChunks,
		EncodeEmbedding(k.Embedding), formatTime(k.Timestamp), tags, meta,
		k.Timestamp.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing knowledge %s: %w", k.ID, err)
	}
	return nil
}

// RetrieveKnowledge mirrors RetrieveMemories with an optional source
// filter instead of a device filter.
func (s *SQLiteBackend) RetrieveKnowledge(ctx context.Context, query []float32, topK int, sourceFilter string) ([]*model.KnowledgeItem, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidArgument)
	}

	q := `
		SELECT id, device_id, content, source, chunk_index, total_chunks, embedding, timestamp, tags, metadata, created_at
		FROM knowledge`
	args := []any{}
	if sourceFilter != "" {
		q += " WHERE source = ?"
		args = append(args, sourceFilter)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, candidateMultiplier*topK)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge candidates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		item      *model.KnowledgeItem
		score     float64
		createdAt int64
	}
	var candidates []candidate
	for rows.Next() {
		item, createdAt, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		sim, err := vectormath.CosineSimilarity(query, item.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		item.RelevanceScore = &sim
		candidates = append(candidates, candidate{item: item, score: sim, createdAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning knowledge candidates: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.createdAt != b.createdAt {
			return a.createdAt > b.createdAt
		}
		return a.item.ID < b.item.ID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]*model.KnowledgeItem, len(candidates))
	for i, c := range candidates {
		out[i] = c.item
	}
	return out, nil
}

// GetKnowledgeByID returns (nil, nil) when the id is unknown.
func (s *SQLiteBackend) GetKnowledgeByID(ctx context.Context, id string) (*model.KnowledgeItem, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, device_id, content, source, chunk_index, total_chunks, embedding, timestamp, tags, metadata, created_at
		FROM knowledge WHERE id = ?`, id)
	item, _, err := scanKnowledge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *SQLiteBackend) DeleteKnowledge(ctx context.Context, id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM knowledge WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting knowledge %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteBackend) GetKnowledgeCount(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting knowledge: %w", err)
	}
	return count, nil
}

func scanKnowledge(r rowScanner) (*model.KnowledgeItem, int64, error) {
	var (
		k         model.KnowledgeItem
		blob      []byte
		ts        string
		tags      string
		meta      string
		createdAt int64
	)
	if err := r.Scan(&k.ID, &k.DeviceID, &k.Content, &k.Source, &k.ChunkIndex, &k.TotalChunks,
		&blob, &ts, &tags, &meta, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("scanning knowledge row: %w", err)
	}

	emb, err := DecodeEmbedding(blob)
	if err != nil {
		return nil, 0, err
	}
	k.Embedding = emb

	if k.Timestamp, err = parseTime(ts); err != nil {
		return nil, 0, err
	}
	if err := json.Unmarshal([]byte(tags), &k.Tags); err != nil {
		return nil, 0, fmt.Errorf("%w: bad tags json: %v", ErrStorageFatal, err)
	}
	if err := json.Unmarshal([]byte(meta), &k.Metadata); err != nil {
		return nil, 0, fmt.Errorf("%w: bad metadata json: %v", ErrStorageFatal, err)
	}
	return &k, createdAt, nil
}
