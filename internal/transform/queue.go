package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/you/tg-bannerizer/internal/jobs"
	"github.com/you/tg-bannerizer/internal/logx"
)

// Queue runs jobs on asynq workers and waits for their result on a per-job
// Redis channel. Worker concurrency replaces the in-process pool.
type Queue struct {
	client *asynq.Client
	rdb    redis.UniversalClient
	// Grace is added to the job deadline for queueing and result delivery.
	Grace time.Duration
}

func NewQueue(client *asynq.Client, rdb redis.UniversalClient) *Queue {
	return &Queue{client: client, rdb: rdb, Grace: 2 * time.Minute}
}

func (q *Queue) Transform(ctx context.Context, job Job) error {
	lg := logx.FromCtx(ctx).With().Str("job", job.ID).Logger()

	// Subscribe before enqueueing so a fast worker cannot publish first.
	sub := q.rdb.Subscribe(ctx, jobs.ResultChannel(job.ID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return q.ctxOr(ctx, fmt.Errorf("subscribe: %w", err))
	}

	uid, _ := logx.UserID(ctx)
	payload, err := jobs.TransformPayload{
		JobID:      job.ID,
		UserID:     uid,
		VideoPath:  job.VideoPath,
		BannerPath: job.BannerPath,
		OutputPath: job.OutputPath,
		Deadline:   job.Deadline,
	}.Encode()
	if err != nil {
		return &Error{Kind: KindQueue, ExitCode: -1, Err: err}
	}

	wait := job.Deadline + q.Grace
	task := asynq.NewTask(jobs.TaskTransform, payload,
		asynq.Queue(jobs.QueueTransform),
		asynq.TaskID(job.ID),
		asynq.MaxRetry(0),
		asynq.Timeout(wait),
		asynq.Retention(0),
	)
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return q.ctxOr(ctx, fmt.Errorf("enqueue: %w", err))
	}
	lg.Info().Dur("deadline", job.Deadline).Msg("transform queued")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return &Error{Kind: KindCanceled, ExitCode: -1, Err: ctx.Err()}
		case <-timer.C:
			return &Error{Kind: KindTimeout, ExitCode: -1, Err: errors.New("no result from worker")}
		case msg, ok := <-ch:
			if !ok {
				return q.ctxOr(ctx, errors.New("result channel closed"))
			}
			res, err := jobs.DecodeResult([]byte(msg.Payload))
			if err != nil || res.JobID != job.ID {
				lg.Warn().Err(err).Msg("ignoring unexpected result message")
				continue
			}
			return resultError(res)
		}
	}
}

func (q *Queue) ctxOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCanceled, ExitCode: -1, Err: ctx.Err()}
	}
	return &Error{Kind: KindQueue, ExitCode: -1, Err: err}
}

func resultError(r jobs.TransformResult) error {
	if r.OK {
		return nil
	}
	kind := Kind(r.Kind)
	if kind == "" {
		kind = KindQueue
	}
	return &Error{Kind: kind, ExitCode: -1, Stderr: r.Stderr, Err: errors.New(r.Detail)}
}
