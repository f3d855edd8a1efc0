package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "stockwatch/pkg/logx"
)

func TestSyncTriesServersInOrder(t *testing.T) {
	t.Parallel()

	var asked []string
	q := func(server string, _ time.Duration) (time.Duration, error) {
		asked = append(asked, server)
		if server == "good" {
			return 90 * time.Second, nil
		}
		return 0, errors.New("timeout")
	}

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{Servers: []string{"bad1", "good", "never"}, Location: time.UTC}, logx.Nop()).WithQuerier(q)
	s.local = func() time.Time { return base }

	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Server != "good" || res.Fallback {
		t.Fatalf("result = %+v", res)
	}
	if len(asked) != 2 || asked[0] != "bad1" || asked[1] != "good" {
		t.Fatalf("asked = %v", asked)
	}
	if want := base.Add(90 * time.Second); !s.Now().Equal(want) {
		t.Fatalf("Now = %v, want %v", s.Now(), want)
	}
	if last, ok := s.LastSync(); !ok || last.Server != "good" {
		t.Fatalf("LastSync = %+v, %v", last, ok)
	}
}

func TestSyncFallsBackToLocal(t *testing.T) {
	t.Parallel()

	q := func(string, time.Duration) (time.Duration, error) { return 0, errors.New("down") }
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{Servers: []string{"a", "b"}, Location: time.UTC}, logx.Nop()).WithQuerier(q)
	s.local = func() time.Time { return base }

	res, err := s.Sync(context.Background())
	if !errors.Is(err, ErrNoServer) {
		t.Fatalf("err = %v, want ErrNoServer", err)
	}
	if !res.Fallback || !res.Time.Equal(base) {
		t.Fatalf("result = %+v", res)
	}
	if got := s.NetworkNow(context.Background()); !got.Equal(base) {
		t.Fatalf("NetworkNow = %v", got)
	}
}

func TestDisabledNeverQueries(t *testing.T) {
	t.Parallel()

	called := false
	q := func(string, time.Duration) (time.Duration, error) { called = true; return 0, nil }
	s := New(Config{Servers: []string{"a"}, Disabled: true}, logx.Nop()).WithQuerier(q)

	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if called {
		t.Fatalf("querier called while disabled")
	}
}

func TestFormatUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CST", 8*3600)
	s := New(Config{Location: loc, Disabled: true}, logx.Nop())
	got := s.Format(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if got != "2026-01-02 11:04:05" {
		t.Fatalf("Format = %q", got)
	}
}
