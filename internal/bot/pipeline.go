package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/deliver"
	"github.com/you/tg-bannerizer/internal/logx"
	"github.com/you/tg-bannerizer/internal/media"
	"github.com/you/tg-bannerizer/internal/progress"
	"github.com/you/tg-bannerizer/internal/session"
	"github.com/you/tg-bannerizer/internal/transform"
)

func sourceOf(m media.InboundMedia) acquire.Source {
	return acquire.Source{FileID: m.FileID, ChatID: m.ChatID, MessageID: m.MessageID, DeclaredSize: m.Size}
}

// acceptBanner downloads an image and makes it the session's banner,
// replacing any previous one. On failure the session is left unchanged.
func (b *Bot) acceptBanner(ctx context.Context, sess *session.Session, m media.InboundMedia) error {
	start := time.Now()
	scope := b.temp.NewScope()
	defer scope.Release()

	dst, err := scope.Path(m.BannerSuffix())
	if err != nil {
		return err
	}
	st := b.newStatus(ctx, sess.ChatID, textDownloading("banner", m.Size, -1))
	n := progress.New(25, b.opts.ProgressEvery, func(pct int) { st.set(textDownloading("banner", m.Size, pct), nil) })
	res, err := b.acq.Acquire(ctx, sourceOf(m), dst, n.Report)
	n.Close()
	if err != nil {
		st.remove()
		return err
	}
	info, err := media.InspectBanner(dst)
	if err != nil {
		st.remove()
		return &BannerError{Err: err}
	}

	replaced := sess.BannerPath != ""
	old := sess.BannerPath
	scope.Detach(dst)
	sess.BannerPath = dst
	sess.State = session.WaitingVideo
	if err := b.store.Upsert(ctx, *sess); err != nil {
		sess.BannerPath = old
		_ = b.temp.Remove(dst)
		st.remove()
		return fmt.Errorf("save session: %w", err)
	}
	if old != "" {
		_ = b.temp.Remove(old)
	}

	logx.FromCtx(ctx).Info().Str("format", info.Format).Int("w", info.Width).Int("h", info.Height).
		Int64("bytes", res.Bytes).Str("via", string(res.Via)).Bool("replaced", replaced).Msg("banner accepted")
	st.set(textBannerSaved(res.Bytes, time.Since(start), res.Via, replaced), nil)
	return nil
}

// processVideo runs download, transform and delivery for one video. Once
// it gets past the size gate the session always ends Idle with the banner
// and every temp file removed.
func (b *Bot) processVideo(ctx context.Context, sess *session.Session, m media.InboundMedia) (err error) {
	if b.opts.MaxFileSize > 0 && m.Size > b.opts.MaxFileSize {
		return &SizeError{Size: m.Size, Limit: b.opts.MaxFileSize}
	}
	banner := sess.BannerPath
	if banner == "" || !fileExists(banner) {
		b.toIdle(context.WithoutCancel(ctx), sess)
		return &StateError{State: session.WaitingVideo, Reason: "banner missing"}
	}
	defer b.toIdle(context.WithoutCancel(ctx), sess)

	jobID := strings.ToLower(ulid.Make().String())
	ctx = logx.WithSession(ctx, jobID)
	lg := logx.FromCtx(ctx)
	if b.opts.JobBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.JobBudget)
		defer cancel()
	}

	scope := b.temp.NewScope()
	defer scope.Release()
	videoPath, err := scope.Path(m.VideoSuffix())
	if err != nil {
		return err
	}
	outPath, err := scope.Path(".mp4")
	if err != nil {
		return err
	}

	start := time.Now()
	st := b.newStatus(ctx, sess.ChatID, textDownloading("video", m.Size, -1))
	defer func() {
		if err != nil {
			st.remove()
		}
	}()

	n := progress.New(b.opts.ProgressStep, b.opts.ProgressEvery, func(pct int) {
		st.set(textDownloading("video", m.Size, pct), nil)
	})
	res, err := b.acq.Acquire(ctx, sourceOf(m), videoPath, n.Report)
	n.Close()
	if err != nil {
		return err
	}
	downloaded := time.Since(start)

	job := transform.Job{
		ID:         jobID,
		VideoPath:  videoPath,
		BannerPath: banner,
		OutputPath: outPath,
		Deadline:   b.opts.Budget.Deadline(res.Bytes),
	}
	st.set(textProcessing(downloaded, job.Deadline), nil)
	tStart := time.Now()
	if err = b.run.Transform(ctx, job); err != nil {
		return err
	}
	processed := time.Since(tStart)

	info, err := os.Stat(outPath)
	if err != nil {
		return &transform.Error{Kind: transform.KindEmptyOutput, ExitCode: 0, Err: err}
	}
	st.set(textUploading(info.Size()), nil)
	caption := textCaption(time.Since(start), downloaded, processed, info.Size())
	dres, err := b.del.Deliver(ctx, sess.ChatID, outPath, "bannered-"+jobID+".mp4", info.Size(), caption)
	if err != nil {
		return err
	}
	if dres.Route == deliver.RouteLink {
		b.say(sess.ChatID, textLink(dres.URL, info.Size()), nil)
	}
	st.remove()

	took := time.Since(start)
	b.stats.Success(took, res.Bytes)
	lg.Info().Int64("in", res.Bytes).Int64("out", info.Size()).Str("via", string(res.Via)).
		Str("route", string(dres.Route)).Dur("took", took).Msg("video delivered")
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// status is the single message edited as a job progresses.
type status struct {
	b      *Bot
	ctx    context.Context
	chatID int64
	id     int

	mu   sync.Mutex
	last string
}

func (b *Bot) newStatus(ctx context.Context, chatID int64, text string) *status {
	return &status{b: b, ctx: ctx, chatID: chatID, id: b.say(chatID, text, nil), last: text}
}

func (s *status) set(text string, buttons [][]Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == 0 || text == s.last {
		return
	}
	if err := s.b.msg.EditText(s.chatID, s.id, text, buttons); err != nil {
		logx.FromCtx(s.ctx).Debug().Err(err).Msg("status edit failed")
		return
	}
	s.last = text
}

func (s *status) remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == 0 {
		return
	}
	if err := s.b.msg.Delete(s.chatID, s.id); err != nil {
		logx.FromCtx(s.ctx).Debug().Err(err).Msg("status delete failed")
	}
	s.id = 0
}
