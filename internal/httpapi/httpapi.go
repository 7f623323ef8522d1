// Package httpapi serves the health and stats endpoints next to the bot.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-bannerizer/internal/bot"
)

// Source supplies the live numbers. Any func may be nil.
type Source struct {
	Stats  func() bot.StatsSnapshot
	Load   func() (running, waiting int)
	Active func() int
}

type statsResponse struct {
	bot.StatsSnapshot
	Running     int `json:"running"`
	Waiting     int `json:"waiting"`
	ActiveUsers int `json:"active_users"`
}

func NewRouter(src Source) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/stats", func(c *gin.Context) {
		var resp statsResponse
		if src.Stats != nil {
			resp.StatsSnapshot = src.Stats()
		}
		if src.Load != nil {
			resp.Running, resp.Waiting = src.Load()
		}
		if src.Active != nil {
			resp.ActiveUsers = src.Active()
		}
		c.JSON(http.StatusOK, resp)
	})
	return r
}

// Serve runs h on addr until ctx ends.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
