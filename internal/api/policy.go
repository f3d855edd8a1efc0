package api

import (
	"net/http"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/notifier"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

const maskedToken = "********"

// policyView is the policy as returned to clients; the bot token is masked.
type policyView struct {
	storage.Policy
	BotConfigured bool `json:"bot_configured"`
}

func viewOf(p storage.Policy) policyView {
	v := policyView{Policy: p, BotConfigured: p.HasCredential()}
	if v.BotConfigured {
		v.BotToken = maskedToken
	}
	return v
}

// policyRequest replaces the policy. A missing or masked bot_token keeps
// the stored one; an empty string clears it.
type policyRequest struct {
	BotToken *string        `json:"bot_token"`
	Channel  storage.Target `json:"channel"`
	Group    storage.Target `json:"group"`
	Personal storage.Target `json:"personal"`
	User     storage.Target `json:"user"`

	CheckInterval int `json:"check_interval" validate:"gte=0"`

	RestockEnabled bool `json:"restock_enabled"`
	SaleEnabled    bool `json:"sale_enabled"`

	TemplateRestock string `json:"template_restock" validate:"max=4000"`
	TemplateSale    string `json:"template_sale" validate:"max=4000"`
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.d.Store.GetPolicy(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, viewOf(p))
}

func (h *Handler) putPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := h.v.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	for field, tmpl := range map[string]string{"template_restock": req.TemplateRestock, "template_sale": req.TemplateSale} {
		if err := notifier.ValidateTemplate(tmpl); err != nil {
			h.fail(w, r, &ValidationError{Field: field, Message: err.Error()})
			return
		}
	}

	cur, err := h.d.Store.GetPolicy(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next := storage.Policy{
		BotToken:        cur.BotToken,
		Channel:         req.Channel,
		Group:           req.Group,
		Personal:        req.Personal,
		User:            req.User,
		CheckInterval:   req.CheckInterval,
		RestockEnabled:  req.RestockEnabled,
		SaleEnabled:     req.SaleEnabled,
		TemplateRestock: req.TemplateRestock,
		TemplateSale:    req.TemplateSale,
	}
	if req.BotToken != nil && *req.BotToken != maskedToken {
		next.BotToken = *req.BotToken
	}

	saved, err := h.d.Store.SavePolicy(r.Context(), next)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.d.Monitor.ApplyPolicy(saved); err != nil {
		// The policy is stored; the next restart picks up the interval.
		h.log.Warn("reschedule failed", logx.Err(err))
	}
	h.d.Bus.Publish(eventbus.Event{Type: eventbus.TypePolicyUpdated, Data: viewOf(saved)})
	h.log.Info("policy updated",
		logx.Int("check_interval", saved.CheckInterval),
		logx.Int("targets", saved.EnabledTargets()),
		logx.Bool("bot_configured", saved.HasCredential()),
	)
	ok(w, viewOf(saved))
}

type testNotificationRequest struct {
	Target string `json:"type" validate:"omitempty,oneof=channel group personal user"`
}

type testNotificationResponse struct {
	Results   []notifier.TargetResult `json:"results"`
	Succeeded int                     `json:"succeeded"`
}

func (h *Handler) testNotification(w http.ResponseWriter, r *http.Request) {
	var req testNotificationRequest
	if err := h.v.decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.d.Store.GetPolicy(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	results, err := h.d.Notifier.TestTargets(r.Context(), p, storage.TargetKind(req.Target))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := testNotificationResponse{Results: results}
	for _, res := range results {
		if res.Success {
			resp.Succeeded++
		}
	}
	ok(w, resp)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	recs, err := h.d.Store.ListNotifications(r.Context(), h.d.NotificationLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, recs)
}

func (h *Handler) clearNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.d.Store.ClearNotifications(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("notifications cleared", logx.Int64("deleted", n))
	ok(w, map[string]int64{"deleted": n})
}
