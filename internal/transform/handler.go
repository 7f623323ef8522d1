package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/you/tg-bannerizer/internal/jobs"
	"github.com/you/tg-bannerizer/internal/logx"
)

// Publisher is the slice of the Redis client the worker needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Handler is the asynq handler for jobs.TaskTransform. Every outcome is
// published to the waiting bot; asynq never retries a transform.
type Handler struct {
	run Runner
	pub Publisher
}

func NewHandler(run Runner, pub Publisher) *Handler {
	return &Handler{run: run, pub: pub}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := jobs.DecodePayload(t.Payload())
	if err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	ctx = logx.WithSession(ctx, p.JobID)
	if p.UserID != 0 {
		ctx = logx.WithUser(ctx, p.UserID)
	}
	lg := logx.FromCtx(ctx)

	start := time.Now()
	err = h.run.Transform(ctx, Job{
		ID:         p.JobID,
		VideoPath:  p.VideoPath,
		BannerPath: p.BannerPath,
		OutputPath: p.OutputPath,
		Deadline:   p.Deadline,
	})
	res := jobs.TransformResult{JobID: p.JobID, OK: err == nil, Duration: time.Since(start)}
	if err != nil {
		res.Kind = string(KindExitStatus)
		res.Detail = err.Error()
		var te *Error
		if errors.As(err, &te) {
			res.Kind = string(te.Kind)
			res.Stderr = te.Stderr
		}
	} else if info, serr := os.Stat(p.OutputPath); serr == nil {
		res.Bytes = info.Size()
	}

	b, err := res.Encode()
	if err != nil {
		return fmt.Errorf("encode result: %v: %w", err, asynq.SkipRetry)
	}
	// The task context may already be past its timeout; the result must still go out.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.pub.Publish(pctx, jobs.ResultChannel(p.JobID), b).Err(); err != nil {
		lg.Error().Err(err).Msg("publish transform result failed")
		return fmt.Errorf("publish result: %v: %w", err, asynq.SkipRetry)
	}
	lg.Info().Bool("ok", res.OK).Str("kind", res.Kind).Dur("took", res.Duration).Msg("transform finished")
	return nil
}
