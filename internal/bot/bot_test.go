package bot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/deliver"
	"github.com/you/tg-bannerizer/internal/media"
	"github.com/you/tg-bannerizer/internal/progress"
	"github.com/you/tg-bannerizer/internal/session"
	"github.com/you/tg-bannerizer/internal/tempfs"
	"github.com/you/tg-bannerizer/internal/transform"
)

const (
	userID = int64(1001)
	chatID = int64(2002)
)

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []string
	edits   []string
	deleted []int
}

func (f *fakeMessenger) SendText(chatID int64, text string, buttons [][]Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, text)
	return f.nextID, nil
}

func (f *fakeMessenger) EditText(chatID int64, messageID int, text string, buttons [][]Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeMessenger) Delete(chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) AnswerCallback(string, string) error { return nil }

func (f *fakeMessenger) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeAcquirer struct {
	mu    sync.Mutex
	calls int
	data  map[string][]byte
	err   error
}

func (f *fakeAcquirer) PrimaryAvailable() bool { return true }

func (f *fakeAcquirer) Acquire(ctx context.Context, src acquire.Source, dst string, onProgress progress.Func) (acquire.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return acquire.Result{Attempts: 2}, f.err
	}
	b := f.data[src.FileID]
	if err := os.WriteFile(dst, b, 0o644); err != nil {
		return acquire.Result{}, err
	}
	onProgress(int64(len(b)), int64(len(b)))
	return acquire.Result{Via: acquire.PathUnrestricted, Bytes: int64(len(b)), Attempts: 1}, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	videos   []string
	docs     []string
	attempts int
	err      error
}

func (f *fakeUploader) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	b, _ := os.ReadFile(path)
	f.videos = append(f.videos, string(b))
	return nil
}

func (f *fakeUploader) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, path)
	return nil
}

// copyRunner "transforms" by writing a marker to the output.
type copyRunner struct{ jobs []transform.Job }

func (r *copyRunner) Transform(ctx context.Context, job transform.Job) error {
	r.jobs = append(r.jobs, job)
	return os.WriteFile(job.OutputPath, []byte("composited"), 0o644)
}

type harness struct {
	bot   *Bot
	msg   *fakeMessenger
	store *session.MemoryStore
	temp  *tempfs.Manager
	acq   *fakeAcquirer
	up    *fakeUploader
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 4))))
	return buf.Bytes()
}

func newHarness(t *testing.T, run transform.Runner, budget transform.Budget) *harness {
	t.Helper()
	temp, err := tempfs.New(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		msg:   &fakeMessenger{},
		store: session.NewMemoryStore(),
		temp:  temp,
		acq: &fakeAcquirer{data: map[string][]byte{
			"banner1": pngBytes(t),
			"banner2": pngBytes(t),
			"video1":  []byte("raw-video"),
			"notimg":  []byte("\x89PNG\r\n\x1a\nbroken"),
		}},
		up: &fakeUploader{},
	}
	h.bot = New(Deps{
		Messenger: h.msg,
		Store:     h.store,
		Temp:      temp,
		Acquirer:  h.acq,
		Runner:    run,
		Deliverer: deliver.New(h.up, nil, deliver.Options{InlineLimit: 50 << 20}),
	}, Options{MaxFileSize: 2 << 30, JobBudget: time.Minute, Budget: budget})
	return h
}

func defaultBudget() transform.Budget {
	return transform.Budget{Floor: 30 * time.Second, PerMiB: 1500 * time.Millisecond, Ceiling: 600 * time.Second}
}

func (h *harness) send(ev Event) {
	ev.UserID, ev.ChatID = userID, chatID
	h.bot.Handle(context.Background(), ev)
}

func (h *harness) state(t *testing.T) session.Session {
	t.Helper()
	s, err := session.Load(context.Background(), h.store, userID, chatID)
	require.NoError(t, err)
	return s
}

func (h *harness) files(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.temp.Dir())
	require.NoError(t, err)
	return len(entries)
}

func cmd(name string) Event { return Event{Command: name} }

func photo(id string) Event {
	return Event{Media: &media.InboundMedia{Kind: media.KindPhoto, FileID: id, Size: 200 << 10, ChatID: chatID}}
}

func video(id string, size int64) Event {
	return Event{Media: &media.InboundMedia{Kind: media.KindVideo, FileID: id, Size: size, MimeType: "video/mp4", ChatID: chatID}}
}

func TestStateSequence(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	assert.Equal(t, session.Idle, h.state(t).State)

	h.send(photo("banner1"))
	assert.Equal(t, session.Idle, h.state(t).State, "idle ignores media")
	assert.Contains(t, h.msg.lastSent(), "/start")

	h.send(cmd("start"))
	assert.Equal(t, session.WaitingBanner, h.state(t).State)

	h.send(Event{Text: "hello"})
	assert.Equal(t, session.WaitingBanner, h.state(t).State)
	assert.Contains(t, h.msg.lastSent(), media.ImageFormats)

	h.send(video("video1", 1<<20))
	assert.Equal(t, session.WaitingBanner, h.state(t).State, "video rejected while waiting for a banner")

	h.send(photo("banner1"))
	s := h.state(t)
	assert.Equal(t, session.WaitingVideo, s.State)
	assert.FileExists(t, s.BannerPath)

	h.send(Event{Text: "where is my video"})
	assert.Equal(t, session.WaitingVideo, h.state(t).State)
	assert.Contains(t, h.msg.lastSent(), media.VideoFormats)

	h.send(video("video1", 1<<20))
	assert.Equal(t, session.Idle, h.state(t).State)
	assert.Empty(t, h.state(t).BannerPath)
	assert.Zero(t, h.files(t))
	assert.Zero(t, h.temp.Live())
}

func TestSuccessDeliversInlineAndResets(t *testing.T) {
	run := &copyRunner{}
	h := newHarness(t, run, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))
	banner := h.state(t).BannerPath

	h.send(video("video1", 40<<20))

	require.Len(t, h.up.videos, 1)
	assert.Equal(t, "composited", h.up.videos[0])
	assert.Empty(t, h.up.docs)
	require.Len(t, run.jobs, 1)
	assert.Equal(t, banner, run.jobs[0].BannerPath)
	assert.InDelta(t, float64(30*time.Second), float64(run.jobs[0].Deadline), float64(time.Millisecond))

	assert.Equal(t, session.Idle, h.state(t).State)
	assert.NoFileExists(t, banner)
	assert.Zero(t, h.files(t))
	assert.NotEmpty(t, h.msg.deleted, "status message removed after delivery")
	assert.Equal(t, 1, h.bot.Stats().Snapshot().Processed)
}

func TestBannerResendReplacesPrevious(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))
	first := h.state(t).BannerPath

	h.send(photo("banner2"))
	s := h.state(t)
	assert.Equal(t, session.WaitingVideo, s.State)
	assert.NotEqual(t, first, s.BannerPath)
	assert.NoFileExists(t, first)
	assert.FileExists(t, s.BannerPath)
	assert.Equal(t, 1, h.files(t))
	assert.Equal(t, 1, h.temp.Live())
}

func TestStartDiscardsBanner(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))
	banner := h.state(t).BannerPath

	h.send(Event{CallbackID: "cb1", CallbackData: CallbackSendBanner})
	assert.Equal(t, session.WaitingBanner, h.state(t).State)
	assert.NoFileExists(t, banner)

	h.send(photo("banner1"))
	h.send(cmd("cancel"))
	assert.Equal(t, session.Idle, h.state(t).State)
	assert.Zero(t, h.files(t))
}

func TestOversizeVideoNeverAcquired(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))
	calls := h.acq.calls

	h.send(video("video1", 3<<30))
	assert.Equal(t, calls, h.acq.calls, "acquisition must not run")
	s := h.state(t)
	assert.Equal(t, session.WaitingVideo, s.State)
	assert.FileExists(t, s.BannerPath)
	assert.Contains(t, h.msg.lastSent(), "limit")
}

func TestTransformTimeoutCleansUpAndResets(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nsleep 30 & wait\n"), 0o755))
	exec := transform.NewExecutor(transform.Options{Path: bin, WaitDelay: time.Second})
	h := newHarness(t, transform.NewPool(exec, 1), transform.Budget{Floor: 300 * time.Millisecond, Ceiling: 300 * time.Millisecond})

	h.send(cmd("start"))
	h.send(photo("banner1"))
	start := time.Now()
	h.send(video("video1", 1<<20))

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Contains(t, h.msg.lastSent(), "too long")
	assert.Equal(t, session.Idle, h.state(t).State)
	assert.Zero(t, h.files(t))
	assert.Empty(t, h.up.videos)
	assert.Equal(t, 1, h.bot.Stats().Snapshot().Errors)
}

func TestAcquireFailureResetsToIdle(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))

	h.acq.err = &acquire.Error{Kind: acquire.KindNetwork, Via: acquire.PathRestricted, Err: errors.New("reset")}
	h.send(video("video1", 1<<20))
	assert.Equal(t, session.Idle, h.state(t).State)
	assert.Zero(t, h.files(t))
	assert.Contains(t, h.msg.lastSent(), "Download failed")
}

func TestDeliveryFailureResetsWithoutRetry(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))
	banner := h.state(t).BannerPath

	h.up.err = errors.New("Request Entity Too Large")
	h.send(video("video1", 1<<20))

	assert.Equal(t, 1, h.up.attempts, "delivery is never retried")
	assert.Equal(t, session.Idle, h.state(t).State)
	assert.NoFileExists(t, banner)
	assert.Zero(t, h.files(t))
	assert.Zero(t, h.temp.Live())
	assert.Contains(t, h.msg.lastSent(), "Sending the result failed")
	assert.Equal(t, 1, h.bot.Stats().Snapshot().Errors)
}

// blockingRunner holds the job until its context ends.
type blockingRunner struct{ started chan struct{} }

func (r *blockingRunner) Transform(ctx context.Context, job transform.Job) error {
	close(r.started)
	<-ctx.Done()
	return &transform.Error{Kind: transform.KindCanceled, ExitCode: -1, Err: ctx.Err()}
}

func TestStartPreemptsRunningJob(t *testing.T) {
	run := &blockingRunner{started: make(chan struct{})}
	h := newHarness(t, run, defaultBudget())
	h.send(cmd("start"))
	h.send(photo("banner1"))

	d := NewDispatcher(context.Background(), h.bot.Handle, Preempts)
	ev := video("video1", 1<<20)
	ev.UserID, ev.ChatID = userID, chatID
	d.Dispatch(ev)

	select {
	case <-run.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transform never started")
	}
	d.Dispatch(Event{UserID: userID, ChatID: chatID, Command: "start"})
	d.Wait()

	s := h.state(t)
	assert.Equal(t, session.WaitingBanner, s.State)
	assert.Empty(t, s.BannerPath)
	assert.Zero(t, h.files(t))
	assert.Zero(t, h.temp.Live())
	assert.Empty(t, h.up.videos)
}

func TestBannerFailureKeepsWaiting(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	h.send(cmd("start"))

	h.send(Event{Media: &media.InboundMedia{Kind: media.KindDocument, FileID: "notimg", MimeType: "image/png"}})
	assert.Equal(t, session.WaitingBanner, h.state(t).State)
	assert.Contains(t, h.msg.lastSent(), "could not be read")
	assert.Zero(t, h.files(t))
}

func TestMissingBannerIsStateError(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	require.NoError(t, h.store.Upsert(context.Background(), session.Session{
		UserID: userID, ChatID: chatID, State: session.WaitingVideo,
		BannerPath: filepath.Join(h.temp.Dir(), "gone.png"),
	}))

	h.send(video("video1", 1<<20))
	assert.Equal(t, session.Idle, h.state(t).State)
	assert.Zero(t, h.acq.calls)
	assert.True(t, strings.Contains(h.msg.lastSent(), "/start"))
}

func TestRestoreAdoptsLiveBannersAndResetsStale(t *testing.T) {
	h := newHarness(t, &copyRunner{}, defaultBudget())
	ctx := context.Background()
	live := filepath.Join(h.temp.Dir(), "live.png")
	require.NoError(t, os.WriteFile(live, pngBytes(t), 0o644))
	require.NoError(t, h.store.Upsert(ctx, session.Session{UserID: 1, State: session.WaitingVideo, BannerPath: live}))
	require.NoError(t, h.store.Upsert(ctx, session.Session{UserID: 2, State: session.WaitingVideo, BannerPath: "/nowhere.png"}))

	require.NoError(t, h.bot.Restore(ctx))
	assert.True(t, h.temp.Owns(live))
	s, err := h.store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, session.Idle, s.State)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "40.0 MB", formatSize(40<<20))
	assert.Equal(t, "2.0 GB", formatSize(2<<30))
}
