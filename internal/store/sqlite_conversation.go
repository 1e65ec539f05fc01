package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hivebrain/internal/model"
)

// StoreConversation upserts the entire conversation blob, turns
// included. created_at and updated_at are both stamped at write time.
func (s *SQLiteBackend) StoreConversation(ctx context.Context, c *model.Conversation) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if c == nil || c.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	now := time.Now().Unix()
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations
		(session_id, chatbot_name, device_id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.ChatbotName, c.DeviceID, string(c.Status), string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("storing conversation %s: %w", c.SessionID, err)
	}
	return nil
}

// LoadConversation returns (nil, nil) when the session is unknown.
func (s *SQLiteBackend) LoadConversation(ctx context.Context, sessionID string) (*model.Conversation, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var data string
	err = db.QueryRowContext(ctx,
		"SELECT data FROM conversations WHERE session_id = ?", sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", sessionID, err)
	}

	var c model.Conversation
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("%w: bad conversation json for %s: %v", ErrStorageFatal, sessionID, err)
	}
	return &c, nil
}

// ListConversations returns up to limit conversations, newest first.
// A non-positive limit returns everything.
func (s *SQLiteBackend) ListConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx,
		"SELECT data FROM conversations ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		var c model.Conversation
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("%w: bad conversation json: %v", ErrStorageFatal, err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) DeleteConversation(ctx context.Context, sessionID string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM conversations WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", sessionID, err)
	}
	return nil
}
