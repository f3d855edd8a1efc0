// Package reader fetches a product page and extracts the stock quantity
// from the first element matching a CSS selector.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	logx "stockwatch/pkg/logx"
)

var (
	// ErrNotFoundInPage means the selector matched nothing. It is never
	// reported as a zero quantity.
	ErrNotFoundInPage = errors.New("element not found in page")
	ErrFetch          = errors.New("fetch failed")
	ErrParse          = errors.New("no quantity in element text")
	ErrInvalidRule    = errors.New("invalid selector")
)

var digitsRe = regexp.MustCompile(`\d+`)

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// Client overrides the HTTP client; Timeout still bounds each read.
	Client *http.Client
}

// Probe is the detailed outcome of a read, used by selector testing.
type Probe struct {
	Quantity int    `json:"quantity"`
	Text     string `json:"text"`
	Status   int    `json:"status"`
}

type Reader struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	c := cfg.Client
	if c == nil {
		c = &http.Client{}
	}
	return &Reader{cfg: cfg, client: c, log: log.With(logx.String("comp", "reader"))}
}

// Read returns the first integer found in the text of the first element
// matching rule.
func (r *Reader) Read(ctx context.Context, url, rule string) (int, error) {
	p, err := r.Probe(ctx, url, rule)
	if err != nil {
		return 0, err
	}
	return p.Quantity, nil
}

// Probe is Read plus the extracted text.
func (r *Reader) Probe(ctx context.Context, url, rule string) (Probe, error) {
	sel, err := cascadia.Parse(strings.TrimSpace(rule))
	if err != nil {
		return Probe{}, fmt.Errorf("%w %q: %v", ErrInvalidRule, rule, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	doc, status, err := r.fetch(ctx, url)
	if err != nil {
		return Probe{Status: status}, err
	}

	node := cascadia.Query(doc, sel)
	if node == nil {
		return Probe{Status: status}, fmt.Errorf("%w: %q", ErrNotFoundInPage, rule)
	}

	text := nodeText(node)
	q, err := ParseQuantity(text)
	if err != nil {
		return Probe{Text: text, Status: status}, err
	}
	r.log.Debug("quantity extracted", logx.String("url", url), logx.String("text", text), logx.Int("quantity", q))
	return Probe{Quantity: q, Text: text, Status: status}, nil
}

func (r *Reader) fetch(ctx context.Context, url string) (*html.Node, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if ua := strings.TrimSpace(r.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, fmt.Errorf("%w: http %d", ErrFetch, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, r.cfg.MaxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: charset: %v", ErrFetch, err)
	}
	doc, err := html.Parse(body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: html: %v", ErrFetch, err)
	}
	return doc, resp.StatusCode, nil
}

// nodeText concatenates the trimmed text nodes under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ParseQuantity returns the first run of ASCII digits in text.
func ParseQuantity(text string) (int, error) {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("%w: %q", ErrParse, text)
	}
	q, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrParse, m, err)
	}
	return q, nil
}
