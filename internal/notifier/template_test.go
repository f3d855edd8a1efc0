package notifier

import (
	"errors"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/storage"
)

func TestRender(t *testing.T) {
	t.Parallel()

	vars := map[string]string{VarProductName: "Widget", VarCurrentStock: "5"}
	tests := []struct {
		name    string
		tmpl    string
		want    string
		wantErr bool
	}{
		{name: "plain", tmpl: "no placeholders", want: "no placeholders"},
		{name: "substitution", tmpl: "{product_name}: {current_stock}", want: "Widget: 5"},
		{name: "escaped braces", tmpl: "{{literal}} {product_name}", want: "{literal} Widget"},
		{name: "unicode around", tmpl: "📦 {product_name} 件", want: "📦 Widget 件"},
		{name: "unknown", tmpl: "{nope}", wantErr: true},
		{name: "unclosed", tmpl: "x {product_name", wantErr: true},
		{name: "stray close", tmpl: "x } y", wantErr: true},
		{name: "empty", tmpl: "{}", wantErr: true},
		{name: "format modifier", tmpl: "{current_stock:+d}", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Render(tt.tmpl, vars)
		if tt.wantErr {
			if !errors.Is(err, ErrRender) {
				t.Fatalf("%s: err = %v, want ErrRender", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: Render: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: Render = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatMessageChain(t *testing.T) {
	t.Parallel()

	it := storage.Item{ID: 1, Name: "Widget", URL: "https://shop/w", CurrentQuantity: 8, PreviousQuantity: 3}
	const checkTime = "2026-01-01 10:00:00"

	t.Run("configured template", func(t *testing.T) {
		p := storage.Policy{TemplateRestock: "{product_name} +{stock_difference} ({previous_stock}->{current_stock}) {buy_url} @ {check_time}"}
		got, err := FormatMessage(p, it, KindRestock, 5, checkTime)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		want := "Widget +5 (3->8) https://shop/w @ 2026-01-01 10:00:00"
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("empty uses builtin", func(t *testing.T) {
		got, err := FormatMessage(storage.Policy{}, it, KindSale, 2, checkTime)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(got, "销售通知") || !strings.Contains(got, "被购买: 2 件") {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("broken template falls back to builtin", func(t *testing.T) {
		p := storage.Policy{TemplateRestock: "{unknown_field}"}
		got, err := FormatMessage(p, it, KindRestock, 5, checkTime)
		if !errors.Is(err, ErrRender) {
			t.Fatalf("err = %v, want ErrRender", err)
		}
		if !strings.Contains(got, "补货数量: 5 件") {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("minimal message keeps buy link", func(t *testing.T) {
		withBuy := it
		withBuy.BuyURL = "https://shop/buy"
		got := minimalMessage(withBuy, KindRestock, 5, checkTime)
		for _, want := range []string{"补货 5 件", "当前库存：8 件", checkTime, "https://shop/buy"} {
			if !strings.Contains(got, want) {
				t.Fatalf("minimal %q missing %q", got, want)
			}
		}
	})

	t.Run("name is markdown escaped", func(t *testing.T) {
		odd := it
		odd.Name = "big_box*"
		got, _ := FormatMessage(storage.Policy{TemplateRestock: "{product_name}"}, odd, KindRestock, 1, checkTime)
		if got != `big\_box\*` {
			t.Fatalf("got %q", got)
		}
	})
}

func TestTestMessageIncludesTime(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC).Format("2006-01-02 15:04:05")
	if !strings.Contains(TestMessage(ts), ts) {
		t.Fatalf("time missing")
	}
}

func TestValidateTemplate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tmpl    string
		wantErr bool
	}{
		{"", false},
		{"   ", false},
		{"{product_name}: {current_stock}", false},
		{"{{literal}}", false},
		{"{price}", true},
		{"{current_stock", true},
		{"stock}", true},
	}
	for _, tc := range cases {
		err := ValidateTemplate(tc.tmpl)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ValidateTemplate(%q) err=%v wantErr=%v", tc.tmpl, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrRender) {
			t.Fatalf("ValidateTemplate(%q) err=%v, want ErrRender", tc.tmpl, err)
		}
	}
}
