// Package telegram adapts the Bot API client to the bot's interfaces.
package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/tg-bannerizer/internal/bot"
	"github.com/you/tg-bannerizer/internal/media"
)

// ToEvent normalizes an update. Updates the bot has no use for return false.
func ToEvent(upd tgbotapi.Update) (bot.Event, bool) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if cq.From == nil {
			return bot.Event{}, false
		}
		ev := bot.Event{UserID: cq.From.ID, ChatID: cq.From.ID, CallbackID: cq.ID, CallbackData: cq.Data}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.CallbackMessageID = cq.Message.MessageID
		}
		return ev, true

	case upd.Message != nil:
		m := upd.Message
		if m.From == nil || m.Chat == nil {
			return bot.Event{}, false
		}
		ev := bot.Event{UserID: m.From.ID, ChatID: m.Chat.ID, MessageID: m.MessageID}
		if m.IsCommand() {
			ev.Command = strings.ToLower(m.Command())
			return ev, true
		}
		ev.Text = m.Text
		ev.Media = Inbound(m)
		return ev, true
	}
	return bot.Event{}, false
}

// Inbound extracts the media carried by m, or nil.
func Inbound(m *tgbotapi.Message) *media.InboundMedia {
	base := media.InboundMedia{ChatID: m.Chat.ID, MessageID: m.MessageID}
	switch {
	case len(m.Photo) > 0:
		// sizes are ascending; the last is the original resolution
		p := m.Photo[len(m.Photo)-1]
		base.Kind = media.KindPhoto
		base.FileID = p.FileID
		base.Size = int64(p.FileSize)
		base.MimeType = "image/jpeg"
	case m.Video != nil:
		base.Kind = media.KindVideo
		base.FileID = m.Video.FileID
		base.Size = int64(m.Video.FileSize)
		base.MimeType = m.Video.MimeType
	case m.Document != nil:
		base.Kind = media.KindDocument
		base.FileID = m.Document.FileID
		base.Size = int64(m.Document.FileSize)
		base.MimeType = m.Document.MimeType
		base.FileName = m.Document.FileName
	default:
		return nil
	}
	return &base
}
