package bot

import (
	"context"
	"time"

	"github.com/you/tg-bannerizer/internal/logx"
	"github.com/you/tg-bannerizer/internal/session"
	"github.com/you/tg-bannerizer/internal/tempfs"
	"github.com/you/tg-bannerizer/internal/transform"
)

type Options struct {
	// MaxFileSize rejects videos before download. Zero disables the check.
	MaxFileSize int64
	// JobBudget bounds a whole video job: download, transform and upload.
	JobBudget time.Duration
	Budget    transform.Budget

	ProgressStep  int
	ProgressEvery time.Duration
}

type Deps struct {
	Messenger Messenger
	Store     session.Store
	Temp      *tempfs.Manager
	Acquirer  Acquirer
	Runner    transform.Runner
	Deliverer Deliverer
	Stats     *Stats
}

type Bot struct {
	msg   Messenger
	store session.Store
	temp  *tempfs.Manager
	acq   Acquirer
	run   transform.Runner
	del   Deliverer
	stats *Stats
	opts  Options

	// active reports users with queued or running events; set by the dispatcher.
	active func() int
}

func New(d Deps, o Options) *Bot {
	if o.ProgressStep <= 0 {
		o.ProgressStep = 5
	}
	if d.Stats == nil {
		d.Stats = NewStats()
	}
	return &Bot{
		msg:    d.Messenger,
		store:  d.Store,
		temp:   d.Temp,
		acq:    d.Acquirer,
		run:    d.Runner,
		del:    d.Deliverer,
		stats:  d.Stats,
		opts:   o,
		active: func() int { return 0 },
	}
}

func (b *Bot) Stats() *Stats { return b.stats }

// SetActive wires the dispatcher's active-user count into /stats.
func (b *Bot) SetActive(f func() int) { b.active = f }

// Preempts reports whether ev should cancel whatever the user is running now.
func Preempts(ev Event) bool {
	switch ev.Command {
	case "start", "cancel":
		return true
	}
	return ev.CallbackData == CallbackSendBanner
}

// Restore re-adopts banners of persisted sessions so the temp sweeper keeps
// them, and resets sessions whose banner is gone.
func (b *Bot) Restore(ctx context.Context) error {
	lg := logx.FromCtx(ctx)
	var stale []session.Session
	err := b.store.Range(ctx, func(s session.Session) bool {
		if s.BannerPath != "" && !b.temp.Adopt(s.BannerPath) {
			stale = append(stale, s)
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, s := range stale {
		s.State, s.BannerPath = session.Idle, ""
		if err := b.store.Upsert(ctx, s); err != nil {
			lg.Warn().Err(err).Int64("uid", s.UserID).Msg("reset stale session failed")
		}
	}
	lg.Info().Int("reset", len(stale)).Msg("sessions restored")
	return nil
}

// Handle processes one event. Events for the same user must not run
// concurrently; the Dispatcher guarantees that.
func (b *Bot) Handle(ctx context.Context, ev Event) {
	ctx = logx.WithUser(ctx, ev.UserID)
	lg := logx.FromCtx(ctx)

	sess, err := session.Load(ctx, b.store, ev.UserID, ev.ChatID)
	if err != nil {
		lg.Error().Err(err).Msg("load session failed")
		b.say(ev.ChatID, errorText(err), nil)
		return
	}
	lg.Debug().Str("state", string(sess.State)).Str("cmd", ev.Command).Str("cb", ev.CallbackData).
		Bool("media", ev.Media != nil).Msg("event")

	switch {
	case ev.CallbackID != "":
		b.onCallback(ctx, &sess, ev)
	case ev.Command != "":
		b.onCommand(ctx, &sess, ev)
	case ev.Media != nil:
		b.onMedia(ctx, &sess, ev)
	default:
		b.say(ev.ChatID, textWrongContent(sess.State), nil)
	}
}

func (b *Bot) onCommand(ctx context.Context, sess *session.Session, ev Event) {
	switch ev.Command {
	case "start":
		b.reset(ctx, sess)
		b.say(ev.ChatID, textWelcome(b.acq.PrimaryAvailable(), b.stats.Snapshot()), mainMenu())
	case "cancel":
		b.toIdle(ctx, sess)
		b.say(ev.ChatID, textIdleHint(), nil)
	case "help":
		b.say(ev.ChatID, textHelp(), nil)
	case "stats":
		b.say(ev.ChatID, textStats(b.stats.Snapshot(), b.acq.PrimaryAvailable(), b.active()), nil)
	default:
		b.say(ev.ChatID, "Unknown command. Send /start to begin.", nil)
	}
}

func (b *Bot) onCallback(ctx context.Context, sess *session.Session, ev Event) {
	if err := b.msg.AnswerCallback(ev.CallbackID, ""); err != nil {
		logx.FromCtx(ctx).Debug().Err(err).Msg("answer callback failed")
	}
	var (
		text    string
		buttons [][]Button
	)
	switch ev.CallbackData {
	case CallbackSendBanner:
		b.reset(ctx, sess)
		text = textSendBanner()
	case CallbackStats:
		text, buttons = textStats(b.stats.Snapshot(), b.acq.PrimaryAvailable(), b.active()), backMenu()
	case CallbackHelp:
		text, buttons = textHelp(), backMenu()
	case CallbackSettings:
		text, buttons = textSettings(b.opts, b.acq.PrimaryAvailable()), backMenu()
	case CallbackBack:
		text, buttons = textWelcome(b.acq.PrimaryAvailable(), b.stats.Snapshot()), mainMenu()
	default:
		return
	}
	if ev.CallbackMessageID != 0 {
		if err := b.msg.EditText(ev.ChatID, ev.CallbackMessageID, text, buttons); err == nil {
			return
		}
	}
	b.say(ev.ChatID, text, buttons)
}

func (b *Bot) onMedia(ctx context.Context, sess *session.Session, ev Event) {
	m := *ev.Media
	switch {
	case sess.State == session.WaitingBanner && m.IsImage(),
		sess.State == session.WaitingVideo && m.IsImage() && !m.IsVideo():
		if err := b.acceptBanner(ctx, sess, m); err != nil {
			b.fail(ctx, ev.ChatID, err)
		}
	case sess.State == session.WaitingVideo && m.IsVideo():
		if err := b.processVideo(ctx, sess, m); err != nil {
			b.fail(ctx, ev.ChatID, err)
		}
	default:
		b.say(ev.ChatID, textWrongContent(sess.State), nil)
	}
}

// reset discards the banner and waits for a new one.
func (b *Bot) reset(ctx context.Context, sess *session.Session) {
	b.dropBanner(ctx, sess)
	sess.State = session.WaitingBanner
	b.save(ctx, *sess)
}

func (b *Bot) toIdle(ctx context.Context, sess *session.Session) {
	b.dropBanner(ctx, sess)
	sess.State = session.Idle
	b.save(ctx, *sess)
}

func (b *Bot) dropBanner(ctx context.Context, sess *session.Session) {
	if sess.BannerPath == "" {
		return
	}
	if err := b.temp.Remove(sess.BannerPath); err != nil {
		logx.FromCtx(ctx).Warn().Err(err).Str("path", sess.BannerPath).Msg("remove banner failed")
	}
	sess.BannerPath = ""
}

func (b *Bot) save(ctx context.Context, sess session.Session) {
	if err := b.store.Upsert(ctx, sess); err != nil {
		logx.FromCtx(ctx).Error().Err(err).Str("state", string(sess.State)).Msg("save session failed")
	}
}

func (b *Bot) say(chatID int64, text string, buttons [][]Button) int {
	id, err := b.msg.SendText(chatID, text, buttons)
	if err != nil {
		logx.FromCtx(context.Background()).Warn().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
	return id
}

// fail is the only place pipeline errors become user messages.
func (b *Bot) fail(ctx context.Context, chatID int64, err error) {
	b.stats.Failure()
	logx.FromCtx(ctx).Warn().Err(err).Msg("job failed")
	b.say(chatID, errorText(err), nil)
}
