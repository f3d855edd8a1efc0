package storage

import (
	"context"
	"database/sql"
	"errors"
)

const policyColumns = `bot_token,
	channel_enabled, channel_id, group_enabled, group_id,
	personal_enabled, personal_id, user_enabled, user_id,
	check_interval, restock_enabled, sale_enabled,
	template_restock, template_sale, updated_at`

type policyRow struct {
	BotToken        string `db:"bot_token"`
	ChannelEnabled  bool   `db:"channel_enabled"`
	ChannelID       string `db:"channel_id"`
	GroupEnabled    bool   `db:"group_enabled"`
	GroupID         string `db:"group_id"`
	PersonalEnabled bool   `db:"personal_enabled"`
	PersonalID      string `db:"personal_id"`
	UserEnabled     bool   `db:"user_enabled"`
	UserID          string `db:"user_id"`
	CheckInterval   int    `db:"check_interval"`
	RestockEnabled  bool   `db:"restock_enabled"`
	SaleEnabled     bool   `db:"sale_enabled"`
	TemplateRestock string `db:"template_restock"`
	TemplateSale    string `db:"template_sale"`
	UpdatedAt       int64  `db:"updated_at"`
}

func (r policyRow) policy() Policy {
	p := Policy{
		BotToken:        r.BotToken,
		Channel:         Target{Enabled: r.ChannelEnabled, ID: r.ChannelID},
		Group:           Target{Enabled: r.GroupEnabled, ID: r.GroupID},
		Personal:        Target{Enabled: r.PersonalEnabled, ID: r.PersonalID},
		User:            Target{Enabled: r.UserEnabled, ID: r.UserID},
		CheckInterval:   r.CheckInterval,
		RestockEnabled:  r.RestockEnabled,
		SaleEnabled:     r.SaleEnabled,
		TemplateRestock: r.TemplateRestock,
		TemplateSale:    r.TemplateSale,
		UpdatedAt:       fromMillis(r.UpdatedAt),
	}
	return p.Normalize()
}

func (s *sqliteStore) GetPolicy(ctx context.Context) (Policy, error) {
	var row policyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+policyColumns+` FROM policy WHERE id = 1`)
	if err == nil {
		return row.policy(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Policy{}, storageErr("get policy", err)
	}
	return s.SavePolicy(ctx, DefaultPolicy())
}

func (s *sqliteStore) SavePolicy(ctx context.Context, p Policy) (Policy, error) {
	p = p.Normalize()
	p.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policy (id, `+policyColumns+`)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   bot_token = excluded.bot_token,
		   channel_enabled = excluded.channel_enabled, channel_id = excluded.channel_id,
		   group_enabled = excluded.group_enabled, group_id = excluded.group_id,
		   personal_enabled = excluded.personal_enabled, personal_id = excluded.personal_id,
		   user_enabled = excluded.user_enabled, user_id = excluded.user_id,
		   check_interval = excluded.check_interval,
		   restock_enabled = excluded.restock_enabled, sale_enabled = excluded.sale_enabled,
		   template_restock = excluded.template_restock, template_sale = excluded.template_sale,
		   updated_at = excluded.updated_at`,
		p.BotToken,
		p.Channel.Enabled, p.Channel.ID, p.Group.Enabled, p.Group.ID,
		p.Personal.Enabled, p.Personal.ID, p.User.Enabled, p.User.ID,
		p.CheckInterval, p.RestockEnabled, p.SaleEnabled,
		p.TemplateRestock, p.TemplateSale, toMillis(p.UpdatedAt),
	)
	if err != nil {
		return Policy{}, storageErr("save policy", err)
	}
	return p, nil
}
