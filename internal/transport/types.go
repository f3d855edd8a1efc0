package transport

import "context"

// ChatTarget addresses a chat. Telegram accepts numeric ids ("-100123") and
// public usernames ("@channel"), so the id stays a string.
type ChatTarget struct {
	ChatID string
}

// Affordance is an optional single link button shown under a message.
type Affordance struct {
	Text string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Affordance     *Affordance
}

// Sender delivers a message with a bot credential to one target. It reports
// success as a bool and never returns an error or panics.
type Sender interface {
	SendToTarget(ctx context.Context, credential, targetID, text string, aff *Affordance) bool
}
