// Package transform runs the banner overlay through ffmpeg under a deadline,
// either in-process on a bounded pool or on queue workers.
package transform

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/you/tg-bannerizer/internal/logx"
)

// OverlayFilter scales the banner to the video frame and shows it at the
// origin during the first second only.
const OverlayFilter = "[1:v][0:v]scale2ref[bnr][vid];" +
	"[vid][bnr]overlay=0:0:enable='lt(t,1)':format=auto[out]"

const stderrTail = 4096

// Job is one overlay request. All paths are local files.
type Job struct {
	ID         string
	VideoPath  string
	BannerPath string
	OutputPath string
	Deadline   time.Duration
}

// Runner executes transform jobs. Implementations must honor ctx and
// Job.Deadline and return *Error on failure.
type Runner interface {
	Transform(ctx context.Context, job Job) error
}

type Options struct {
	Path    string
	Preset  string
	CRF     int
	MaxRate string
	BufSize string
	// WaitDelay bounds how long Run waits for pipes after the process is killed.
	WaitDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "ffmpeg"
	}
	if o.Preset == "" {
		o.Preset = "ultrafast"
	}
	if o.CRF <= 0 {
		o.CRF = 23
	}
	if o.MaxRate == "" {
		o.MaxRate = "200M"
	}
	if o.BufSize == "" {
		o.BufSize = "4M"
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = 5 * time.Second
	}
	return o
}

// BuildArgs returns the ffmpeg argument list for job, without the binary.
func BuildArgs(o Options, job Job) []string {
	o = o.withDefaults()
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", job.VideoPath,
		"-i", job.BannerPath,
		"-filter_complex", OverlayFilter,
		"-map", "[out]",
		"-map", "0:a?",
		"-c:a", "copy",
		"-c:v", "libx264",
		"-preset", o.Preset,
		"-crf", strconv.Itoa(o.CRF),
		"-maxrate", o.MaxRate,
		"-bufsize", o.BufSize,
		"-movflags", "+faststart",
		"-f", "mp4",
		job.OutputPath,
	}
}

// Executor runs a single ffmpeg process per call. It has no concurrency
// limit of its own; wrap it in a Pool.
type Executor struct {
	opts Options
}

func NewExecutor(o Options) *Executor { return &Executor{opts: o.withDefaults()} }

// Transform runs job to completion. Success means exit status 0 and a
// non-empty output file.
func (e *Executor) Transform(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: ctxKind(err), ExitCode: -1, Err: err}
	}
	runCtx := ctx
	if job.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Deadline)
		defer cancel()
	}

	lg := logx.FromCtx(ctx).With().Str("job", job.ID).Logger()
	tail := newTail(stderrTail)
	lw := logx.NewLineWriter(map[string]string{"component": "ffmpeg", "job": job.ID}, zerolog.DebugLevel)

	cmd := exec.CommandContext(runCtx, e.opts.Path, BuildArgs(e.opts, job)...)
	killGroup(cmd)
	cmd.WaitDelay = e.opts.WaitDelay
	cmd.Stdout = io.Discard
	cmd.Stderr = io.MultiWriter(tail, lw)

	start := time.Now()
	lg.Debug().Dur("deadline", job.Deadline).Msg("ffmpeg starting")
	err := cmd.Run()
	lw.Flush()
	elapsed := time.Since(start)

	switch {
	case ctx.Err() != nil:
		lg.Warn().Err(ctx.Err()).Dur("elapsed", elapsed).Msg("ffmpeg stopped by caller")
		return &Error{Kind: ctxKind(ctx.Err()), ExitCode: -1, Stderr: tail.String(), Err: ctx.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		lg.Warn().Dur("elapsed", elapsed).Dur("deadline", job.Deadline).Msg("ffmpeg killed at deadline")
		return &Error{Kind: KindTimeout, ExitCode: -1, Stderr: tail.String(), Err: runCtx.Err()}
	case err != nil:
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		lg.Warn().Err(err).Int("code", code).Msg("ffmpeg failed")
		return &Error{Kind: KindExitStatus, ExitCode: code, Stderr: tail.String(), Err: err}
	}

	info, statErr := os.Stat(job.OutputPath)
	if statErr != nil || info.Size() == 0 {
		lg.Warn().Err(statErr).Msg("ffmpeg exited cleanly without output")
		return &Error{Kind: KindEmptyOutput, ExitCode: 0, Stderr: tail.String(), Err: statErr}
	}
	lg.Info().Dur("elapsed", elapsed).Int64("bytes", info.Size()).Msg("ffmpeg done")
	return nil
}

// ctxKind separates an expired caller budget from an explicit cancel.
func ctxKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCanceled
}
