// Package transport defines the send-side messaging port. The notifier
// only pushes messages out; there is no inbound update handling.
package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
