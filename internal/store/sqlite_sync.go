package store

import (
	"context"
	"fmt"
	"time"

	"hivebrain/internal/model"
)

// StoreSyncOperation enqueues a pending change record. created_at is
// stamped at write so pending queries replay in insertion order.
func (s *SQLiteBackend) StoreSyncOperation(ctx context.Context, op *model.SyncOperation) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if op == nil || op.OperationID == "" {
		return fmt.Errorf("%w: operation id is required", ErrInvalidArgument)
	}

	resolved := 0
	if op.Resolved {
		resolved = 1
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_operations
		(operation_id, operation_type, item_type, item_id, device_id, timestamp, data, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.OperationID, string(op.OperationType), string(op.ItemType), op.ItemID,
		op.DeviceID, formatTime(op.Timestamp), op.Data, resolved, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storing sync operation %s: %w", op.OperationID, err)
	}
	return nil
}

// GetPendingSyncOperations returns the device's unresolved operations
// in insertion order.
func (s *SQLiteBackend) GetPendingSyncOperations(ctx context.Context, deviceID string) ([]*model.SyncOperation, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT operation_id, operation_type, item_type, item_id, device_id, timestamp, data, resolved
		FROM sync_operations
		WHERE device_id = ? AND resolved = 0
		ORDER BY created_at ASC, operation_id ASC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying pending sync operations: %w", err)
	}
	defer rows.Close()

	var out []*model.SyncOperation
	for rows.Next() {
		var (
			op       model.SyncOperation
			opType   string
			itemType string
			ts       string
			resolved int
		)
		if err := rows.Scan(&op.OperationID, &opType, &itemType, &op.ItemID,
			&op.DeviceID, &ts, &op.Data, &resolved); err != nil {
			return nil, fmt.Errorf("scanning sync operation: %w", err)
		}
		op.OperationType = model.SyncOpType(opType)
		op.ItemType = model.ItemType(itemType)
		op.Resolved = resolved != 0
		if op.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

// MarkSyncOperationResolved flips the resolved flag. Unlike point
// reads, an unknown id here is an error.
func (s *SQLiteBackend) MarkSyncOperationResolved(ctx context.Context, operationID string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx,
		"UPDATE sync_operations SET resolved = 1 WHERE operation_id = ?", operationID)
	if err != nil {
		return fmt.Errorf("resolving sync operation %s: %w", operationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving sync operation %s: %w", operationID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sync operation %s", ErrNotFound, operationID)
	}
	return nil
}
