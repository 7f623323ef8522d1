// Package acquire downloads a remote Telegram file to a local path, trying
// the unrestricted path first and the size-limited Bot API second.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/you/tg-bannerizer/internal/logx"
	"github.com/you/tg-bannerizer/internal/progress"
)

type Path string

const (
	PathUnrestricted Path = "unrestricted"
	PathRestricted   Path = "restricted"
)

// Source identifies the remote object and the message it came from.
type Source struct {
	FileID       string
	ChatID       int64
	MessageID    int
	DeclaredSize int64 // 0 when unknown
}

// FileMeta is what the restricted API reports for a file id.
type FileMeta struct {
	FileID string
	Size   int64
	Path   string
}

// Unrestricted downloads without the public size ceiling.
type Unrestricted interface {
	Available() bool
	Download(ctx context.Context, src Source, dst string, onProgress progress.Func) error
}

// Restricted is the public, size-limited Bot API.
type Restricted interface {
	FileMetadata(ctx context.Context, fileID string) (FileMeta, error)
	// DownloadToPath is the platform's own one-shot download.
	DownloadToPath(ctx context.Context, fileID, dst string) error
	// Open streams the bytes behind meta for manual, chunked download.
	Open(ctx context.Context, meta FileMeta) (io.ReadCloser, error)
}

type Options struct {
	// Ceiling is the restricted API's hard download limit.
	Ceiling int64
	// Chunk is the read size of the manual stream.
	Chunk int
}

type Result struct {
	Via      Path
	Bytes    int64
	Attempts int
	Elapsed  time.Duration
}

type Acquirer struct {
	primary  Unrestricted
	fallback Restricted
	opts     Options
}

// New builds an Acquirer. primary may be nil.
func New(primary Unrestricted, fallback Restricted, opts Options) *Acquirer {
	if opts.Chunk <= 0 {
		opts.Chunk = 256 * 1024
	}
	return &Acquirer{primary: primary, fallback: fallback, opts: opts}
}

// PrimaryAvailable reports whether the unrestricted path will be tried.
func (a *Acquirer) PrimaryAvailable() bool {
	return a.primary != nil && a.primary.Available()
}

// Acquire writes the object behind src to dst. It makes at most two
// attempts: the unrestricted path when available, then the restricted one.
// On failure dst may hold partial data; the caller owns and removes it.
func (a *Acquirer) Acquire(ctx context.Context, src Source, dst string, onProgress progress.Func) (Result, error) {
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}
	lg := logx.FromCtx(ctx).With().Str("file_id", src.FileID).Int64("declared", src.DeclaredSize).Logger()
	start := time.Now()
	res := Result{}

	var primaryErr error
	if a.PrimaryAvailable() {
		res.Attempts++
		err := a.primary.Download(ctx, src, dst, onProgress)
		if err == nil {
			err = nonEmpty(dst)
		}
		if err == nil {
			res.Via = PathUnrestricted
			res.Bytes, _ = fileSize(dst)
			res.Elapsed = time.Since(start)
			lg.Info().Int64("bytes", res.Bytes).Dur("elapsed", res.Elapsed).Msg("downloaded via unrestricted path")
			return res, nil
		}
		primaryErr = err
		if k := classify(err); k == KindCanceled {
			return res, &Error{Kind: k, Via: PathUnrestricted, Err: err}
		}
		lg.Warn().Err(err).Msg("unrestricted download failed; falling back to Bot API")
	}

	res.Attempts++
	err := a.restricted(ctx, src, dst, onProgress)
	if err == nil {
		err = nonEmpty(dst)
	}
	if err != nil {
		_ = os.Truncate(dst, 0)
		aerr := &Error{Kind: classify(err), Via: PathRestricted, Err: err, Primary: primaryErr}
		lg.Error().Err(aerr).Int("attempts", res.Attempts).Msg("download failed")
		return res, aerr
	}
	res.Via = PathRestricted
	res.Bytes, _ = fileSize(dst)
	res.Elapsed = time.Since(start)
	lg.Info().Int64("bytes", res.Bytes).Dur("elapsed", res.Elapsed).Msg("downloaded via Bot API")
	return res, nil
}

func (a *Acquirer) restricted(ctx context.Context, src Source, dst string, onProgress progress.Func) error {
	if src.DeclaredSize > a.opts.Ceiling {
		return a.direct(ctx, src, dst, onProgress)
	}
	meta, err := a.fallback.FileMetadata(ctx, src.FileID)
	if err != nil {
		return err
	}
	if meta.Path == "" {
		return fmt.Errorf("%w: empty file path for %s", ErrMalformed, src.FileID)
	}
	if meta.Size > a.opts.Ceiling {
		return a.direct(ctx, src, dst, onProgress)
	}

	total := meta.Size
	if total <= 0 {
		total = src.DeclaredSize
	}
	job := &transferJob{src: src, dst: dst, total: total, onProgress: onProgress}
	return job.run(ctx, a.fallback, meta, a.opts.Chunk)
}

func (a *Acquirer) direct(ctx context.Context, src Source, dst string, onProgress progress.Func) error {
	if err := a.fallback.DownloadToPath(ctx, src.FileID, dst); err != nil {
		return err
	}
	if n, err := fileSize(dst); err == nil {
		onProgress(n, n)
	}
	return nil
}

// transferJob is one manual download attempt.
type transferJob struct {
	src        Source
	dst        string
	total      int64
	written    int64
	onProgress progress.Func
}

func (j *transferJob) run(ctx context.Context, r Restricted, meta FileMeta, chunk int) error {
	rc, err := r.Open(ctx, meta)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(j.dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer f.Close()

	buf := make([]byte, chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := io.ReadFull(rc, buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write destination: %w", werr)
			}
			j.written += int64(n)
			if j.total > 0 {
				j.onProgress(j.written, j.total)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	if j.total <= 0 {
		j.onProgress(j.written, j.written)
	}
	return nil
}

func nonEmpty(path string) error {
	n, err := fileSize(path)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEmpty
	}
	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
