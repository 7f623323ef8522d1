package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/tg-bannerizer/internal/bot"
)

// Sender implements bot.Messenger and deliver.Uploader. Uploads go through
// upload, which may be a local server with a larger upload limit.
type Sender struct {
	api    *tgbotapi.BotAPI
	upload *tgbotapi.BotAPI
}

// NewSender uses api for uploads too when upload is nil.
func NewSender(api, upload *tgbotapi.BotAPI) *Sender {
	if upload == nil {
		upload = api
	}
	return &Sender{api: api, upload: upload}
}

func keyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kb = append(kb, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func (s *Sender) SendText(chatID int64, text string, buttons [][]bot.Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = keyboard(buttons)
	}
	m, err := s.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return m.MessageID, nil
}

func (s *Sender) EditText(chatID int64, messageID int, text string, buttons [][]bot.Button) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if len(buttons) > 0 {
		kb := keyboard(buttons)
		edit.ReplyMarkup = &kb
	}
	_, err := s.api.Request(edit)
	return err
}

func (s *Sender) Delete(chatID int64, messageID int) error {
	_, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (s *Sender) AnswerCallback(callbackID, text string) error {
	_, err := s.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// SendVideo uploads path as a streamable video. The client has no context
// support, so ctx is only checked before the upload starts.
func (s *Sender) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	v.Caption = caption
	v.SupportsStreaming = true
	if _, err := s.upload.Send(v); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

func (s *Sender) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	d.Caption = caption
	if _, err := s.upload.Send(d); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

// SetCommands registers the command menu shown by clients.
func (s *Sender) SetCommands() error {
	_, err := s.api.Request(tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start over"},
		tgbotapi.BotCommand{Command: "help", Description: "How it works"},
		tgbotapi.BotCommand{Command: "stats", Description: "Processing statistics"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Cancel the current job"},
	))
	return err
}
