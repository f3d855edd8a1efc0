package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	logx "stockwatch/pkg/logx"
)

const itemColumns = `id, name, url, selector, current_quantity, previous_quantity, version, active, buy_url, created_at, updated_at`

type itemRow struct {
	ID               int64  `db:"id"`
	Name             string `db:"name"`
	URL              string `db:"url"`
	Selector         string `db:"selector"`
	CurrentQuantity  int    `db:"current_quantity"`
	PreviousQuantity int    `db:"previous_quantity"`
	Version          int64  `db:"version"`
	Active           bool   `db:"active"`
	BuyURL           string `db:"buy_url"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r itemRow) item() Item {
	return Item{
		ID:               r.ID,
		Name:             r.Name,
		URL:              r.URL,
		Selector:         r.Selector,
		CurrentQuantity:  r.CurrentQuantity,
		PreviousQuantity: r.PreviousQuantity,
		Version:          r.Version,
		Active:           r.Active,
		BuyURL:           r.BuyURL,
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
}

type eventRow struct {
	ID             int64  `db:"id"`
	ItemID         int64  `db:"item_id"`
	QuantityBefore int    `db:"quantity_before"`
	QuantityAfter  int    `db:"quantity_after"`
	ChangeType     string `db:"change_type"`
	CreatedAt      int64  `db:"created_at"`
}

func (s *sqliteStore) CreateItem(ctx context.Context, in NewItem) (Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	in.Selector = strings.TrimSpace(in.Selector)
	if in.Name == "" || in.URL == "" || in.Selector == "" {
		return Item{}, fmt.Errorf("%w: name, url and selector are required", ErrInvalid)
	}
	if in.Quantity < 0 {
		return Item{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalid)
	}

	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (name, url, selector, current_quantity, previous_quantity, version, active, buy_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		in.Name, in.URL, in.Selector, in.Quantity, in.Quantity, !in.Inactive, strings.TrimSpace(in.BuyURL), now, now,
	)
	if err != nil {
		return Item{}, storageErr("insert item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Item{}, storageErr("insert item id", err)
	}
	return s.GetItem(ctx, id)
}

func (s *sqliteStore) GetItem(ctx context.Context, id int64) (Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, storageErr(fmt.Sprintf("get item %d", id), err)
	}
	return row.item(), nil
}

func (s *sqliteStore) ListItems(ctx context.Context) ([]Item, error) {
	return s.listItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
}

func (s *sqliteStore) ListActiveItems(ctx context.Context) ([]Item, error) {
	return s.listItems(ctx, `SELECT `+itemColumns+` FROM items WHERE active = 1 ORDER BY id`)
}

func (s *sqliteStore) listItems(ctx context.Context, query string) ([]Item, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storageErr("list items", err)
	}
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.item())
	}
	return out, nil
}

func (s *sqliteStore) SetItemActive(ctx context.Context, id int64, active bool) (Item, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE items SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return Item{}, storageErr(fmt.Sprintf("set item %d active", id), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Item{}, ErrNotFound
	}
	return s.GetItem(ctx, id)
}

func (s *sqliteStore) AtomicUpdate(ctx context.Context, id int64, qty int) (UpdateResult, error) {
	if qty < 0 {
		return UpdateResult{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalid)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpdateResult{}, storageErr("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var row itemRow
	if err := tx.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UpdateResult{}, ErrNotFound
		}
		return UpdateResult{}, storageErr(fmt.Sprintf("load item %d", id), err)
	}

	old := row.CurrentQuantity
	now := toMillis(s.now())

	res, err := tx.ExecContext(ctx,
		`UPDATE items
		 SET previous_quantity = ?, current_quantity = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		old, qty, now, id, row.Version,
	)
	if err != nil {
		return UpdateResult{}, storageErr(fmt.Sprintf("update item %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{}, storageErr(fmt.Sprintf("update item %d", id), err)
	}
	if n != 1 {
		return UpdateResult{}, fmt.Errorf("item %d at version %d: %w", id, row.Version, ErrConflict)
	}

	changed := old != qty
	if changed {
		ct := ChangeIncrease
		if qty < old {
			ct = ChangeDecrease
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stock_events (item_id, quantity_before, quantity_after, change_type, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, old, qty, string(ct), now,
		); err != nil {
			return UpdateResult{}, storageErr(fmt.Sprintf("append event for item %d", id), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return UpdateResult{}, storageErr("commit", err)
	}
	committed = true

	if changed {
		s.log.Debug("stock changed", logx.Int64("item_id", id), logx.Int("old", old), logx.Int("new", qty))
	}
	return UpdateResult{Changed: changed, Old: old, New: qty, Version: row.Version + 1}, nil
}

func (s *sqliteStore) ListEvents(ctx context.Context, itemID int64, limit int) ([]StockEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, item_id, quantity_before, quantity_after, change_type, created_at
		 FROM stock_events WHERE item_id = ? ORDER BY id DESC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("list events for item %d", itemID), err)
	}
	out := make([]StockEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, StockEvent{
			ID:             r.ID,
			ItemID:         r.ItemID,
			QuantityBefore: r.QuantityBefore,
			QuantityAfter:  r.QuantityAfter,
			Delta:          r.QuantityAfter - r.QuantityBefore,
			ChangeType:     ChangeType(r.ChangeType),
			CreatedAt:      fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var row struct {
		Total  int           `db:"total"`
		Active sql.NullInt64 `db:"active"`
		In     sql.NullInt64 `db:"in_stock"`
		Out    sql.NullInt64 `db:"out_stock"`
		Latest sql.NullInt64 `db:"latest"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT COUNT(*) AS total,
		        SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END) AS active,
		        SUM(CASE WHEN current_quantity > 0 THEN 1 ELSE 0 END) AS in_stock,
		        SUM(CASE WHEN current_quantity = 0 THEN 1 ELSE 0 END) AS out_stock,
		        MAX(updated_at) AS latest
		 FROM items`)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	st := Stats{
		TotalItems:    row.Total,
		ActiveItems:   int(row.Active.Int64),
		InStockItems:  int(row.In.Int64),
		OutStockItems: int(row.Out.Int64),
	}
	if row.Latest.Valid && row.Latest.Int64 > 0 {
		t := fromMillis(row.Latest.Int64)
		st.LatestUpdate = &t
	}
	return st, nil
}
