package main

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-bannerizer/internal/config"
	"github.com/you/tg-bannerizer/internal/jobs"
	"github.com/you/tg-bannerizer/internal/logx"
	"github.com/you/tg-bannerizer/internal/transform"
)

func main() {
	_ = godotenv.Load()
	logx.Setup(logx.FromEnv("worker"))

	c, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	defer rdb.Close()

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: c.RedisAddr}, asynq.Config{
		Concurrency:     c.MaxWorkers,
		Queues:          map[string]int{jobs.QueueTransform: 1},
		Logger:          logx.NewAsynqLogger(),
		ShutdownTimeout: 30 * time.Second,
	})

	exec := transform.NewExecutor(transform.Options{
		Path:    c.FFmpegPath,
		Preset:  c.FFmpegPreset,
		CRF:     c.FFmpegCRF,
		MaxRate: c.FFmpegMaxRate,
		BufSize: c.FFmpegBufSize,
	})

	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskTransform, transform.NewHandler(exec, rdb))

	log.Info().Int("concurrency", c.MaxWorkers).Str("redis", c.RedisAddr).Msg("worker starting")
	// Run blocks until SIGTERM or SIGINT, then drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("worker")
	}
}
