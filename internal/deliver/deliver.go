// Package deliver sends a finished video back to the user, choosing between
// an inline playable video, a plain attachment, and an external link.
package deliver

import (
	"context"
	"fmt"

	"github.com/you/tg-bannerizer/internal/logx"
)

type Route string

const (
	RouteInline     Route = "inline"
	RouteAttachment Route = "attachment"
	RouteLink       Route = "link"
)

// Uploader is the platform's send capability.
type Uploader interface {
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
}

// Linker publishes a file somewhere reachable by URL.
type Linker interface {
	Upload(ctx context.Context, path, name string) (fileURL string, err error)
}

type Options struct {
	// InlineLimit is the largest file sent as a streamable video.
	InlineLimit int64
	// LinkAbove routes files larger than this through the Linker. Zero disables it.
	LinkAbove int64
}

type Result struct {
	Route Route
	URL   string // set for RouteLink
}

type Error struct {
	Route Route
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("deliver %s: %v", e.Route, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type Deliverer struct {
	up   Uploader
	link Linker
	opts Options
}

// New builds a Deliverer. link may be nil.
func New(up Uploader, link Linker, opts Options) *Deliverer {
	if link == nil {
		opts.LinkAbove = 0
	}
	return &Deliverer{up: up, link: link, opts: opts}
}

// Pick is the routing rule. It depends on size only.
func (d *Deliverer) Pick(size int64) Route {
	if d.opts.LinkAbove > 0 && size > d.opts.LinkAbove {
		return RouteLink
	}
	if size > d.opts.InlineLimit {
		return RouteAttachment
	}
	return RouteInline
}

// Deliver sends the file at path once. There are no retries.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, path, name string, size int64, caption string) (Result, error) {
	route := d.Pick(size)
	lg := logx.FromCtx(ctx).With().Str("route", string(route)).Int64("bytes", size).Logger()

	var (
		res = Result{Route: route}
		err error
	)
	switch route {
	case RouteLink:
		res.URL, err = d.link.Upload(ctx, path, name)
	case RouteAttachment:
		err = d.up.SendDocument(ctx, chatID, path, caption)
	default:
		err = d.up.SendVideo(ctx, chatID, path, caption)
	}
	if err != nil {
		lg.Error().Err(err).Msg("delivery failed")
		return res, &Error{Route: route, Err: err}
	}
	lg.Info().Msg("delivered")
	return res, nil
}
