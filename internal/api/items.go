package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stockwatch/internal/monitor"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

type createItemRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	URL      string `json:"url" validate:"required,http_url"`
	Selector string `json:"selector" validate:"required,max=500"`
	BuyURL   string `json:"buy_url" validate:"omitempty,http_url"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Inactive bool   `json:"inactive"`
}

type toggleResponse struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
}

type checkResponse struct {
	monitor.CheckResult
	Message string `json:"message"`
}

func itemID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid item id %q", errBadRequest, raw)
	}
	return id, nil
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.d.Store.ListItems(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, items)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := h.v.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	it, err := h.d.Store.CreateItem(r.Context(), storage.NewItem{
		Name:     req.Name,
		URL:      req.URL,
		Selector: req.Selector,
		BuyURL:   req.BuyURL,
		Quantity: req.Quantity,
		Inactive: req.Inactive,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("item created", logx.Int64("item_id", it.ID), logx.String("name", it.Name))
	writeJSON(w, http.StatusCreated, Envelope{Data: it})
}

func (h *Handler) toggleItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cur, err := h.d.Store.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	it, err := h.d.Store.SetItemActive(r.Context(), id, !cur.Active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state := "paused"
	if it.Active {
		state = "active"
	}
	h.log.Info("item toggled", logx.Int64("item_id", id), logx.String("state", state))
	writeJSON(w, http.StatusOK, Envelope{
		Data:    toggleResponse{ID: it.ID, Active: it.Active},
		Message: fmt.Sprintf("monitoring for %q is now %s", it.Name, state),
	})
}

func (h *Handler) itemHistory(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.d.Store.GetItem(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.d.Store.ListEvents(r.Context(), id, h.d.HistoryLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, events)
}

// checkItem reads one item synchronously and records the reading without
// notifying.
func (h *Handler) checkItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.d.Monitor.CheckItem(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, checkResponse{CheckResult: res, Message: fmt.Sprintf("current stock: %d", res.Stock)})
}

// checkAll enqueues a full cycle and returns before it runs.
func (h *Handler) checkAll(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Monitor.TriggerCycle(); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Envelope{Message: "check cycle queued"})
}

type selectorTestRequest struct {
	URL      string `json:"url" validate:"required,http_url"`
	Selector string `json:"selector" validate:"required"`
}

func (h *Handler) testSelector(w http.ResponseWriter, r *http.Request) {
	var req selectorTestRequest
	if err := h.v.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.d.Reader.Probe(r.Context(), strings.TrimSpace(req.URL), strings.TrimSpace(req.Selector))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, p)
}
