package export

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"stockwatch/internal/eventbus"
	logx "stockwatch/pkg/logx"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = map[string][][]byte{}
	}
	p.msgs[subject] = append(p.msgs[subject], data)
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs[subject])
}

func TestExporterForwardsStockChanges(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	pub := &recordingPublisher{}
	e := NewExporter(Config{Subject: "stockwatch.stock.changed"}, pub, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, bus) }()

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for pub.count("stockwatch.stock.changed") == 0 && time.Now().Before(deadline) {
		bus.Publish(eventbus.Event{Type: eventbus.TypeCycleFinished, Data: "ignored"})
		bus.Publish(eventbus.Event{Type: eventbus.TypeStockChanged, Data: map[string]int{"new": 8}})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	msgs := pub.msgs["stockwatch.stock.changed"]
	if len(msgs) == 0 {
		t.Fatalf("nothing exported")
	}
	for _, raw := range msgs {
		var env struct {
			Type string         `json:"type"`
			Data map[string]int `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type != eventbus.TypeStockChanged || env.Data["new"] != 8 {
			t.Fatalf("envelope=%+v", env)
		}
	}
}

func TestDialRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := Dial(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
