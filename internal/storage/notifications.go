package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type notificationRow struct {
	ID        int64          `db:"id"`
	ItemID    int64          `db:"item_id"`
	ItemName  sql.NullString `db:"item_name"`
	Kind      string         `db:"kind"`
	Message   string         `db:"message"`
	Status    string         `db:"status"`
	CreatedAt int64          `db:"created_at"`
}

func (s *sqliteStore) AppendNotification(ctx context.Context, rec NotificationRecord) (int64, error) {
	if rec.Status == "" {
		return 0, fmt.Errorf("%w: notification status is required", ErrInvalid)
	}
	at := rec.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (item_id, kind, message, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ItemID, rec.Kind, rec.Message, string(rec.Status), toMillis(at),
	)
	if err != nil {
		return 0, storageErr("append notification", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("append notification id", err)
	}
	return id, nil
}

// ListNotifications returns the newest records first.
func (s *sqliteStore) ListNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT n.id, n.item_id, i.name AS item_name, n.kind, n.message, n.status, n.created_at
		 FROM notifications n LEFT JOIN items i ON i.id = n.item_id
		 ORDER BY n.created_at DESC, n.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("list notifications", err)
	}
	out := make([]NotificationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, NotificationRecord{
			ID:        r.ID,
			ItemID:    r.ItemID,
			ItemName:  r.ItemName.String,
			Kind:      r.Kind,
			Message:   r.Message,
			Status:    NotificationStatus(r.Status),
			CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}

func (s *sqliteStore) ClearNotifications(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications`)
	if err != nil {
		return 0, storageErr("clear notifications", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
