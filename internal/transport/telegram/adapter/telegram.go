package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "stockwatch/internal/transport"
	logx "stockwatch/pkg/logx"
)

const telegramTextLimit = 4096

type Config struct {
	// APIURL is the Bot API base; empty means api.telegram.org.
	APIURL      string
	SendTimeout time.Duration
	// Client overrides the HTTP client used by every bot. A copy is used;
	// SendTimeout applies when it has no Timeout of its own.
	Client *http.Client
}

// Adapter sends messages through the Telegram Bot API. The credential is
// supplied per call (it lives in the stored policy and may change at runtime),
// so bots are built lazily and cached by token.
type Adapter struct {
	cfg Config
	log logx.Logger

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func New(cfg Config, log logx.Logger) *Adapter {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Adapter{
		cfg:  cfg,
		log:  log.With(logx.String("comp", "telegram")),
		bots: make(map[string]*tele.Bot),
	}
}

// chatRecipient implements tele.Recipient for string chat ids.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func (a *Adapter) bot(token string) (*tele.Bot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.bots[token]; ok {
		return b, nil
	}
	// telebot does not take a context; the client timeout bounds each call.
	client := &http.Client{Timeout: a.cfg.SendTimeout}
	if a.cfg.Client != nil {
		c := *a.cfg.Client
		if c.Timeout <= 0 {
			c.Timeout = a.cfg.SendTimeout
		}
		client = &c
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     strings.TrimRight(strings.TrimSpace(a.cfg.APIURL), "/"),
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	// Tokens change rarely; keep the cache tiny.
	if len(a.bots) >= 8 {
		a.bots = make(map[string]*tele.Bot)
	}
	a.bots[token] = b
	return b, nil
}

// SendToTarget sends text with Markdown formatting and link previews off.
// Any failure, including a panic in the client, is logged and reported as false.
func (a *Adapter) SendToTarget(ctx context.Context, credential, targetID, text string, aff *kit.Affordance) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("telegram send panicked", logx.String("target", targetID), logx.Any("panic", r))
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.SendTimeout)
	defer cancel()

	err := a.SendText(ctx, credential, kit.ChatTarget{ChatID: targetID}, text, &kit.SendOptions{
		ParseMode:      tele.ModeMarkdown,
		DisablePreview: true,
		Affordance:     aff,
	})
	if err != nil {
		a.log.Warn("telegram send failed", logx.String("target", targetID), logx.Err(err))
		return false
	}
	a.log.Debug("telegram message sent", logx.String("target", targetID))
	return true
}

// SendText sends text to a chat, splitting it into chunks below the API limit.
// The affordance button is attached to the first chunk only.
func (a *Adapter) SendText(ctx context.Context, credential string, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return errors.New("telegram token is empty")
	}
	if strings.TrimSpace(to.ChatID) == "" {
		return errors.New("telegram chat id is empty")
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	b, err := a.bot(credential)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}

	chunks := splitTelegramText(text, telegramTextLimit)
	chat := chatRecipient(strings.TrimSpace(to.ChatID))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
		}
		if i == 0 && opt.Affordance != nil && strings.TrimSpace(opt.Affordance.URL) != "" {
			sendOpt.ReplyMarkup = &tele.ReplyMarkup{
				InlineKeyboard: [][]tele.InlineButton{{{Text: opt.Affordance.Text, URL: opt.Affordance.URL}}},
			}
		}
		if _, err := b.Send(chat, chunk, sendOpt); err != nil {
			return err
		}
	}
	return nil
}

// splitTelegramText splits long messages into chunks that are safe to send to
// Telegram, preferring newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
