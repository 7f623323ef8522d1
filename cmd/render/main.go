// Command render applies a banner to one local video, the same way the bot
// does, without Telegram in the loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/you/tg-bannerizer/internal/config"
	"github.com/you/tg-bannerizer/internal/logx"
	"github.com/you/tg-bannerizer/internal/media"
	"github.com/you/tg-bannerizer/internal/transform"
)

type flags struct {
	video, banner, out string
	deadline           time.Duration
	preset             string
	crf                int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "render --video in.mp4 --banner banner.png",
		Short: "Overlay a banner on a video with the bot's ffmpeg settings",
		Long: `Overlay a banner on a video with the bot's ffmpeg settings.

Without --deadline the limit is derived from the input size the same way the
bot derives it (TRANSFORM_FLOOR, TRANSFORM_PER_MIB, PROCESSING_TIMEOUT).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.video, "video", "", "input video")
	cmd.Flags().StringVar(&f.banner, "banner", "", "banner image")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output path (default <video>_bannered.mp4)")
	cmd.Flags().DurationVar(&f.deadline, "deadline", 0, "kill ffmpeg after this long (0 = derive from size)")
	cmd.Flags().StringVar(&f.preset, "preset", "", "x264 preset (default from config)")
	cmd.Flags().IntVar(&f.crf, "crf", 0, "x264 CRF (default from config)")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("banner")
	return cmd
}

func run(ctx context.Context, f *flags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	lc := logx.FromEnv("render")
	if os.Getenv("LOG_FORMAT") == "" {
		lc.Console = true
	}
	logx.Setup(lc)

	c, err := config.Load()
	if err != nil {
		return err
	}

	info, err := os.Stat(f.video)
	if err != nil {
		return err
	}
	if _, err := media.InspectBanner(f.banner); err != nil {
		return err
	}

	out := f.out
	if out == "" {
		out = strings.TrimSuffix(f.video, ".mp4") + "_bannered.mp4"
	}
	deadline := f.deadline
	if deadline <= 0 {
		deadline = transform.Budget{
			Floor:   c.TransformFloor,
			PerMiB:  c.TransformPerMiB,
			Ceiling: c.ProcessingTimeout,
		}.Deadline(info.Size())
	}

	opts := transform.Options{
		Path:    c.FFmpegPath,
		Preset:  c.FFmpegPreset,
		CRF:     c.FFmpegCRF,
		MaxRate: c.FFmpegMaxRate,
		BufSize: c.FFmpegBufSize,
	}
	if f.preset != "" {
		opts.Preset = f.preset
	}
	if f.crf > 0 {
		opts.CRF = f.crf
	}

	id := strings.ToLower(ulid.Make().String())
	ctx = logx.WithSession(ctx, id)
	start := time.Now()
	err = transform.NewExecutor(opts).Transform(ctx, transform.Job{
		ID:         id,
		VideoPath:  f.video,
		BannerPath: f.banner,
		OutputPath: out,
		Deadline:   deadline,
	})
	if err != nil {
		var te *transform.Error
		if errors.As(err, &te) && te.Stderr != "" {
			fmt.Fprintln(os.Stderr, te.Stderr)
		}
		return err
	}
	log.Info().Str("out", out).Dur("took", time.Since(start)).Dur("deadline", deadline).Msg("rendered")
	return nil
}
