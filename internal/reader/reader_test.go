package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "stockwatch/pkg/logx"
)

const page = `<!doctype html>
<html><body>
  <div class="product">
    <span id="stock">库存: <b>12</b> 件</span>
    <span class="sold-out">Sold out</span>
    <span class="zero">剩余 0 件</span>
    <span class="multi">3 of 40 left</span>
  </div>
</body></html>`

func TestRead(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/item":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	rd := New(Config{Timeout: 2 * time.Second}, logx.Nop())

	tests := []struct {
		name    string
		path    string
		rule    string
		want    int
		wantErr error
	}{
		{name: "nested text", path: "/item", rule: "#stock", want: 12},
		{name: "real zero", path: "/item", rule: ".zero", want: 0},
		{name: "first token wins", path: "/item", rule: ".multi", want: 3},
		{name: "no digits", path: "/item", rule: ".sold-out", wantErr: ErrParse},
		{name: "missing element", path: "/item", rule: "#nope", wantErr: ErrNotFoundInPage},
		{name: "http error", path: "/gone", rule: "#stock", wantErr: ErrFetch},
		{name: "bad selector", path: "/item", rule: "div[", wantErr: ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := rd.Read(context.Background(), srv.URL+tt.path, tt.rule)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Read = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rd := New(Config{Timeout: 50 * time.Millisecond}, logx.Nop())
	_, err := rd.Read(context.Background(), srv.URL, "#stock")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
}

func TestProbeReturnsText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "probe-agent" {
			t.Errorf("user agent = %q", ua)
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	rd := New(Config{UserAgent: "probe-agent"}, logx.Nop())
	p, err := rd.Probe(context.Background(), srv.URL, "#stock")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if p.Text != "库存:12件" || p.Quantity != 12 || p.Status != http.StatusOK {
		t.Fatalf("probe = %+v", p)
	}
}

func TestParseQuantity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "42", want: 42},
		{in: "Stock: 007", want: 7},
		{in: "1,234 left", want: 1},
		{in: "none", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseQuantity(%q) err = %v", tt.in, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseQuantity(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
