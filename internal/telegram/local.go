package telegram

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/progress"
)

// LocalServer downloads through a self-hosted Bot API server, which has no
// 20 MB limit. In --local mode it answers getFile with an absolute path on
// its own disk; otherwise the file is served over HTTP.
//
// Downloads are serialized: the server shares one connection to Telegram.
type LocalServer struct {
	api          *tgbotapi.BotAPI
	hc           *http.Client
	fileEndpoint string

	mu sync.Mutex
}

// DialLocal connects to the local server and checks the token with getMe.
func DialLocal(token, apiEndpoint, fileEndpoint string, hc *http.Client) (*LocalServer, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("connect local bot api: %w", err)
	}
	log.Info().Str("endpoint", apiEndpoint).Str("username", api.Self.UserName).Msg("local bot api connected")
	return &LocalServer{api: api, hc: hc, fileEndpoint: fileEndpoint}, nil
}

func (l *LocalServer) Available() bool { return l != nil && l.api != nil }

func (l *LocalServer) Download(ctx context.Context, src acquire.Source, dst string, onProgress progress.Func) error {
	if !l.Available() {
		return acquire.ErrUnavailable
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := getFile(ctx, l.api, src.FileID)
	if err != nil {
		return err
	}
	if f.FilePath == "" {
		return fmt.Errorf("%w: empty file_path", acquire.ErrMalformed)
	}
	total := int64(f.FileSize)
	if total <= 0 {
		total = src.DeclaredSize
	}

	if filepath.IsAbs(f.FilePath) {
		in, err := os.Open(f.FilePath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %v", acquire.ErrNotFound, err)
			}
			return err
		}
		defer in.Close()
		return copyTo(ctx, in, dst, total, onProgress)
	}

	u, err := fileURL(l.fileEndpoint, l.api.Token, f.FilePath)
	if err != nil {
		return err
	}
	body, err := open(ctx, l.hc, u)
	if err != nil {
		return err
	}
	defer body.Close()
	return copyTo(ctx, body, dst, total, onProgress)
}
