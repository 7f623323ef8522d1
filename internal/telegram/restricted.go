package telegram

import (
	"context"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/tg-bannerizer/internal/acquire"
)

// Restricted downloads through the public Bot API, which refuses files
// above its 20 MB limit.
type Restricted struct {
	api          *tgbotapi.BotAPI
	hc           *http.Client
	fileEndpoint string
}

// NewRestricted uses tgbotapi.FileEndpoint when fileEndpoint is empty.
func NewRestricted(api *tgbotapi.BotAPI, hc *http.Client, fileEndpoint string) *Restricted {
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Restricted{api: api, hc: hc, fileEndpoint: fileEndpoint}
}

func (r *Restricted) FileMetadata(ctx context.Context, fileID string) (acquire.FileMeta, error) {
	f, err := getFile(ctx, r.api, fileID)
	if err != nil {
		return acquire.FileMeta{}, err
	}
	return acquire.FileMeta{FileID: f.FileID, Size: int64(f.FileSize), Path: f.FilePath}, nil
}

// DownloadToPath is the one-shot download: resolve, then fetch whole.
func (r *Restricted) DownloadToPath(ctx context.Context, fileID, dst string) error {
	meta, err := r.FileMetadata(ctx, fileID)
	if err != nil {
		return err
	}
	if meta.Path == "" {
		return acquire.ErrMalformed
	}
	body, err := r.Open(ctx, meta)
	if err != nil {
		return err
	}
	defer body.Close()
	return copyTo(ctx, body, dst, 0, nil)
}

func (r *Restricted) Open(ctx context.Context, meta acquire.FileMeta) (io.ReadCloser, error) {
	u, err := fileURL(r.fileEndpoint, r.api.Token, meta.Path)
	if err != nil {
		return nil, err
	}
	return open(ctx, r.hc, u)
}
