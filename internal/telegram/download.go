package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/progress"
)

// mapErr turns Bot API error descriptions into acquire sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "file is too big"):
		return fmt.Errorf("%w: %v", acquire.ErrTooBig, err)
	case strings.Contains(msg, "wrong file_id"),
		strings.Contains(msg, "invalid file_id"),
		strings.Contains(msg, "file not found"),
		strings.Contains(msg, "file_id_invalid"):
		return fmt.Errorf("%w: %v", acquire.ErrNotFound, err)
	}
	return err
}

// withCtx runs a blocking client call and gives up when ctx ends. The call
// itself stops at the HTTP client's timeout.
func withCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func getFile(ctx context.Context, api *tgbotapi.BotAPI, fileID string) (tgbotapi.File, error) {
	f, err := withCtx(ctx, func() (tgbotapi.File, error) {
		return api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	})
	return f, mapErr(err)
}

func open(ctx context.Context, hc *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &acquire.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

// progressWriter reports cumulative bytes after every write.
type progressWriter struct {
	w     io.Writer
	n     int64
	total int64
	fn    progress.Func
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += int64(n)
	if p.fn != nil && p.total > 0 {
		p.fn(p.n, p.total)
	}
	return n, err
}

// ctxReader stops a copy once ctx ends.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// copyTo streams r into dst, truncating it first.
func copyTo(ctx context.Context, r io.Reader, dst string, total int64, fn progress.Func) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	pw := &progressWriter{w: f, total: total, fn: fn}
	_, err = io.CopyBuffer(pw, ctxReader{ctx: ctx, r: r}, make([]byte, 256*1024))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if total <= 0 && fn != nil {
		fn(pw.n, pw.n)
	}
	return nil
}

func fileURL(endpoint, token, path string) (string, error) {
	if endpoint == "" {
		return "", errors.New("no file endpoint configured")
	}
	return fmt.Sprintf(endpoint, token, path), nil
}
