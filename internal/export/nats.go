// Package export forwards selected bus events to external systems.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"stockwatch/internal/eventbus"
	logx "stockwatch/pkg/logx"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Config struct {
	URL     string
	Subject string
	// Types lists the bus event types to forward. Empty means stock.changed.
	Types []string
}

// NATSExporter publishes bus events as JSON on one subject.
type NATSExporter struct {
	cfg   Config
	pub   Publisher
	conn  *nats.Conn
	log   logx.Logger
	types map[string]bool
}

type envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Dial connects to cfg.URL. The connection reconnects on its own.
func Dial(cfg Config, log logx.Logger) (*NATSExporter, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("nats url required")
	}
	log = log.With(logx.String("comp", "export.nats"))
	nc, err := nats.Connect(url,
		nats.Name("stockwatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	e := NewExporter(cfg, nc, log)
	e.conn = nc
	return e, nil
}

// NewExporter wraps an existing publisher.
func NewExporter(cfg Config, pub Publisher, log logx.Logger) *NATSExporter {
	types := cfg.Types
	if len(types) == 0 {
		types = []string{eventbus.TypeStockChanged}
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &NATSExporter{cfg: cfg, pub: pub, log: log, types: set}
}

// Run forwards matching events until ctx is done.
func (e *NATSExporter) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !e.types[ev.Type] {
				continue
			}
			if err := e.publish(ev); err != nil {
				e.log.Warn("event export failed", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

func (e *NATSExporter) publish(ev eventbus.Event) error {
	body, err := json.Marshal(envelope{Type: ev.Type, Time: ev.Time, Data: ev.Data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	return e.pub.Publish(e.cfg.Subject, body)
}

// Close drains the connection when Dial created it.
func (e *NATSExporter) Close() error {
	if e == nil || e.conn == nil {
		return nil
	}
	return e.conn.Drain()
}
