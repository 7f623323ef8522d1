// Package session holds the per-user conversation state.
package session

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	Idle          State = "idle"
	WaitingBanner State = "waiting_banner"
	WaitingVideo  State = "waiting_video"
)

// Session is one user's conversation. BannerPath is set only in WaitingVideo
// and names a temp file owned by this session.
type Session struct {
	UserID     int64     `json:"user_id"`
	ChatID     int64     `json:"chat_id"`
	State      State     `json:"state"`
	BannerPath string    `json:"banner_path,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("session not found")

// Store persists sessions. Only the bot's per-user dispatcher writes, so
// implementations need no compare-and-swap.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Upsert(ctx context.Context, s Session) error
	Remove(ctx context.Context, userID int64) error
	// Range calls fn for every stored session until fn returns false.
	Range(ctx context.Context, fn func(Session) bool) error
}

// Load returns the user's session, or a fresh Idle one.
func Load(ctx context.Context, st Store, userID, chatID int64) (Session, error) {
	s, err := st.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Session{UserID: userID, ChatID: chatID, State: Idle}, nil
	}
	if err != nil {
		return Session{}, err
	}
	if chatID != 0 {
		s.ChatID = chatID
	}
	return s, nil
}
