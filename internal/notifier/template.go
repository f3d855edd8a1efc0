package notifier

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRender = errors.New("template render failed")

// Placeholders accepted in templates.
const (
	VarProductName     = "product_name"
	VarCurrentStock    = "current_stock"
	VarPreviousStock   = "previous_stock"
	VarStockDifference = "stock_difference"
	VarCheckTime       = "check_time"
	VarProductURL      = "product_url"
	VarBuyURL          = "buy_url"
)

// Render substitutes {name} placeholders from vars. "{{" and "}}" produce
// literal braces. Unknown names, format specs, empty braces and unbalanced
// braces are errors wrapping ErrRender.
func Render(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl) + 64)

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d", ErrRender, i)
			}
			name := tmpl[i+1 : i+1+end]
			if name == "" {
				return "", fmt.Errorf("%w: empty placeholder at offset %d", ErrRender, i)
			}
			if strings.ContainsAny(name, "{:!") {
				return "", fmt.Errorf("%w: unsupported placeholder %q", ErrRender, name)
			}
			v, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("%w: unknown placeholder %q", ErrRender, name)
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrRender, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
