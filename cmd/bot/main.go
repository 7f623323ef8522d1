package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/bot"
	"github.com/you/tg-bannerizer/internal/config"
	"github.com/you/tg-bannerizer/internal/deliver"
	"github.com/you/tg-bannerizer/internal/httpapi"
	"github.com/you/tg-bannerizer/internal/logx"
	"github.com/you/tg-bannerizer/internal/session"
	"github.com/you/tg-bannerizer/internal/telegram"
	"github.com/you/tg-bannerizer/internal/tempfs"
	"github.com/you/tg-bannerizer/internal/transform"
)

func main() {
	_ = godotenv.Load()
	logx.Setup(logx.FromEnv("bot"))

	c, err := config.Load()
	if err == nil {
		err = c.ValidateBot()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.Info().Msg("bot starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	temp, err := tempfs.New(c.TempDir())
	if err != nil {
		log.Fatal().Err(err).Msg("temp dir")
	}
	go temp.RunSweeper(ctx, c.TempSweepInterval, c.TempMaxAge)

	hc := &http.Client{Timeout: c.DownloadTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(c.BotToken, tgbotapi.APIEndpoint, hc)
	if err != nil {
		log.Fatal().Err(err).Msg("bot api")
	}
	log.Info().Str("username", api.Self.UserName).Msg("bot authorized")

	// The local server is optional; without it large files take the
	// restricted path and fail there with a size error.
	// Uploads get their own client so a large result is not cut off at the
	// download timeout.
	var (
		primary        acquire.Unrestricted
		uploadEndpoint = tgbotapi.APIEndpoint
		linkAbove      = c.UploadLimit
	)
	if c.LocalAPIEnabled() {
		local, err := telegram.DialLocal(c.BotToken, c.LocalAPIEndpoint, c.LocalFileEndpoint, hc)
		if err != nil {
			log.Warn().Err(err).Msg("local bot api unavailable, restricted downloads only")
		} else {
			primary = local
			uploadEndpoint = c.LocalAPIEndpoint
			linkAbove = c.MaxFileSize
		}
	}
	uploadAPI, err := tgbotapi.NewBotAPIWithClient(c.BotToken, uploadEndpoint, &http.Client{Timeout: c.UploadTimeout})
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", uploadEndpoint).Msg("upload bot api")
	}
	acq := acquire.New(primary, telegram.NewRestricted(api, hc, ""), acquire.Options{
		Ceiling: c.RestrictedLimit,
		Chunk:   c.DownloadChunk,
	})

	sender := telegram.NewSender(api, uploadAPI)
	if err := sender.SetCommands(); err != nil {
		log.Warn().Err(err).Msg("set commands")
	}

	var linker deliver.Linker
	if c.FilebinEnable {
		linker = &deliver.Filebin{Base: c.FilebinBase, Prefix: c.FilebinBinPrefix, Client: &http.Client{Timeout: c.UploadTimeout}}
	}
	del := deliver.New(sender, linker, deliver.Options{InlineLimit: c.InlineLimit, LinkAbove: linkAbove})

	var rdb *redis.Client
	if c.TransformBackend == "asynq" || c.SessionStore == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", c.RedisAddr).Msg("redis")
		}
	}

	var (
		runner transform.Runner
		load   func() (int, int)
	)
	switch c.TransformBackend {
	case "asynq":
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: c.RedisAddr})
		defer client.Close()
		runner = transform.NewQueue(client, rdb)
		log.Info().Str("redis", c.RedisAddr).Msg("transforms run on asynq workers")
	default:
		pool := transform.NewPool(transform.NewExecutor(ffmpegOptions(c)), c.MaxWorkers)
		runner, load = pool, pool.Load
		log.Info().Int("workers", pool.Size()).Msg("transforms run in-process")
	}

	var store session.Store = session.NewMemoryStore()
	if c.SessionStore == "redis" {
		store = session.NewRedisStore(rdb, c.SessionTTL)
	}

	b := bot.New(bot.Deps{
		Messenger: sender,
		Store:     store,
		Temp:      temp,
		Acquirer:  acq,
		Runner:    runner,
		Deliverer: del,
	}, bot.Options{
		MaxFileSize: c.MaxFileSize,
		JobBudget:   c.JobBudget,
		Budget: transform.Budget{
			Floor:   c.TransformFloor,
			PerMiB:  c.TransformPerMiB,
			Ceiling: c.ProcessingTimeout,
		},
		ProgressStep:  5,
		ProgressEvery: 2 * time.Second,
	})
	if err := b.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restore sessions")
	}

	d := bot.NewDispatcher(ctx, b.Handle, bot.Preempts)
	b.SetActive(d.Active)

	go func() {
		err := httpapi.Serve(ctx, c.HTTPAddr, httpapi.NewRouter(httpapi.Source{
			Stats:  b.Stats().Snapshot,
			Load:   load,
			Active: d.Active,
		}))
		if err != nil {
			log.Error().Err(err).Msg("http server")
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			ev, ok := telegram.ToEvent(upd)
			if !ok {
				continue
			}
			log.Debug().Int64("uid", ev.UserID).Str("cmd", ev.Command).Str("cb", ev.CallbackData).Bool("media", ev.Media != nil).Msg("update")
			d.Dispatch(ev)
		}
	}

	log.Info().Msg("shutting down")
	api.StopReceivingUpdates()
	d.Wait()
	log.Info().Msg("bot stopped")
}

func ffmpegOptions(c config.Config) transform.Options {
	return transform.Options{
		Path:    c.FFmpegPath,
		Preset:  c.FFmpegPreset,
		CRF:     c.FFmpegCRF,
		MaxRate: c.FFmpegMaxRate,
		BufSize: c.FFmpegBufSize,
	}
}
