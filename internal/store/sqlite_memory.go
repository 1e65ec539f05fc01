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

// StoreMemory upserts a memory by id. The embedding round-trips
// bit-exactly through the packed blob encoding.
func (s *SQLiteBackend) StoreMemory(ctx context.Context, m *model.MemoryItem) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: memory id is required", ErrInvalidArgument)
	}

	tags, err := marshalJSON(m.Tags, "[]")
	if err != nil {
		return err
	}
	meta, err := marshalJSON(m.Metadata, "{}")
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories
		(id, device_id, user_message, bot_response, context, embedding, timestamp, tags, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DeviceID, m.UserMessage, m.BotResponse, m.Context,
		EncodeEmbedding(m.Embedding), formatTime(m.Timestamp), tags, meta,
		m.Timestamp.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing memory %s: %w", m.ID, err)
	}
	return nil
}

// RetrieveMemories ranks the candidate window by cosine similarity to
// the query and returns the top K. The candidate window is the newest
// 10*topK rows, optionally restricted to one device.
func (s *SQLiteBackend) RetrieveMemories(ctx context.Context, query []float32, topK int, deviceFilter string) ([]*model.MemoryItem, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidArgument)
	}

	q := `
		SELECT id, device_id, user_message, bot_response, context, embedding, timestamp, tags, metadata, created_at
		FROM memories`
	args := []any{}
	if deviceFilter != "" {
		q += " WHERE device_id = ?"
		args = append(args, deviceFilter)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, candidateMultiplier*topK)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memory candidates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		item      *model.MemoryItem
		score     float64
		createdAt int64
	}
	var candidates []candidate
	for rows.Next() {
		item, createdAt, err := scanMemory(rows)
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
		return nil, fmt.Errorf("scanning memory candidates: %w", err)
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
	out := make([]*model.MemoryItem, len(candidates))
	for i, c := range candidates {
		out[i] = c.item
	}
	return out, nil
}

// GetMemoryByID returns (nil, nil) when the id is unknown.
func (s *SQLiteBackend) GetMemoryByID(ctx context.Context, id string) (*model.MemoryItem, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, device_id, user_message, bot_response, context, embedding, timestamp, tags, metadata, created_at
		FROM memories WHERE id = ?`, id)
	item, _, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *SQLiteBackend) DeleteMemory(ctx context.Context, id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting memory %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteBackend) GetMemoryCount(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(r rowScanner) (*model.MemoryItem, int64, error) {
	var (
		m         model.MemoryItem
		blob      []byte
		ts        string
		tags      string
		meta      string
		createdAt int64
	)
	if err := r.Scan(&m.ID, &m.DeviceID, &m.UserMessage, &m.BotResponse, &m.Context,
		&blob, &ts, &tags, &meta, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("scanning memory row: %w", err)
	}

	emb, err := DecodeEmbedding(blob)
	if err != nil {
		return nil, 0, err
	}
	m.Embedding = emb

	if m.Timestamp, err = parseTime(ts); err != nil {
		return nil, 0, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, 0, fmt.Errorf("%w: bad tags json: %v", ErrStorageFatal, err)
	}
	if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
		return nil, 0, fmt.Errorf("%w: bad metadata json: %v", ErrStorageFatal, err)
	}
	return &m, createdAt, nil
}
