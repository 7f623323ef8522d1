package deliver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Filebin uploads to a filebin.net compatible service. Bins expire on
// their own after a few days.
type Filebin struct {
	Base   string
	Prefix string
	Client *http.Client
}

func (f *Filebin) bin() string {
	id := strings.ToLower(ulid.Make().String())
	if p := strings.TrimSpace(f.Prefix); p != "" {
		return p + "-" + id
	}
	return id
}

func (f *Filebin) Upload(ctx context.Context, path, name string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", err
	}

	fileURL := fmt.Sprintf("%s/%s/%s", strings.TrimRight(f.Base, "/"), f.bin(), url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fileURL, file)
	if err != nil {
		return "", err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	hc := f.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("filebin upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("filebin upload: unexpected status %s", resp.Status)
	}
	return fileURL, nil
}
