package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrCorruptBanner is returned for files that claim a known image format but
// cannot be decoded.
var ErrCorruptBanner = errors.New("banner image is corrupt")

type BannerInfo struct {
	Format string // "" when the format is not decodable here (HEIC, SVG); ffmpeg decides
	Width  int
	Height int
}

// InspectBanner reads just the image header of path.
func InspectBanner(path string) (BannerInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return BannerInfo{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if errors.Is(err, image.ErrFormat) {
		return BannerInfo{}, nil
	}
	if err != nil {
		return BannerInfo{}, fmt.Errorf("%w: %v", ErrCorruptBanner, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return BannerInfo{}, fmt.Errorf("%w: %dx%d", ErrCorruptBanner, cfg.Width, cfg.Height)
	}
	return BannerInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
