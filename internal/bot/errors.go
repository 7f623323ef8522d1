package bot

import (
	"fmt"

	"github.com/you/tg-bannerizer/internal/session"
)

// StateError is an event that arrived out of order, or a session whose
// banner went missing. The user recovers with /start.
type StateError struct {
	State  session.State
	Reason string
}

func (e *StateError) Error() string { return fmt.Sprintf("state %s: %s", e.State, e.Reason) }

// SizeError rejects a video before any download starts.
type SizeError struct {
	Size  int64
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("file size %d exceeds limit %d", e.Size, e.Limit)
}

// BannerError is a banner that downloaded fine but is not a usable image.
type BannerError struct {
	Err error
}

func (e *BannerError) Error() string { return "unusable banner: " + e.Err.Error() }
func (e *BannerError) Unwrap() error { return e.Err }
