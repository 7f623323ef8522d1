// Package bot is the per-user conversation: it routes inbound events by
// session state and drives acquisition, transform and delivery.
package bot

import (
	"context"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/deliver"
	"github.com/you/tg-bannerizer/internal/media"
	"github.com/you/tg-bannerizer/internal/progress"
)

// Event is one inbound update, already normalized.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Command   string // without the leading slash
	Text      string

	CallbackID   string
	CallbackData string
	// CallbackMessageID is the message carrying the pressed button.
	CallbackMessageID int

	Media *media.InboundMedia
}

type Button struct {
	Text string
	Data string
}

// Callback data values.
const (
	CallbackSendBanner = "send_banner"
	CallbackHelp       = "help"
	CallbackStats      = "stats"
	CallbackSettings   = "settings"
	CallbackBack       = "back_to_main"
)

// Messenger is the text side of the platform.
type Messenger interface {
	SendText(chatID int64, text string, buttons [][]Button) (int, error)
	EditText(chatID int64, messageID int, text string, buttons [][]Button) error
	Delete(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string) error
}

type Acquirer interface {
	Acquire(ctx context.Context, src acquire.Source, dst string, onProgress progress.Func) (acquire.Result, error)
	PrimaryAvailable() bool
}

type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, path, name string, size int64, caption string) (deliver.Result, error)
}
