package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/you/tg-bannerizer/internal/acquire"
	"github.com/you/tg-bannerizer/internal/deliver"
	"github.com/you/tg-bannerizer/internal/media"
	"github.com/you/tg-bannerizer/internal/session"
	"github.com/you/tg-bannerizer/internal/transform"
)

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

func seconds(d time.Duration) string { return fmt.Sprintf("%.1fs", d.Seconds()) }

func viaLabel(v acquire.Path) string {
	if v == acquire.PathUnrestricted {
		return "local Bot API"
	}
	return "Bot API"
}

func mainMenu() [][]Button {
	return [][]Button{
		{{Text: "🖼 Send banner", Data: CallbackSendBanner}, {Text: "📊 Stats", Data: CallbackStats}},
		{{Text: "❓ Help", Data: CallbackHelp}, {Text: "⚙️ Settings", Data: CallbackSettings}},
	}
}

func backMenu() [][]Button {
	return [][]Button{{{Text: "🔙 Back", Data: CallbackBack}}}
}

func onOff(b bool) string {
	if b {
		return "✅ on"
	}
	return "❌ off"
}

func textWelcome(unrestricted bool, s StatsSnapshot) string {
	return fmt.Sprintf("🚀 Banner bot\n\n"+
		"Send an image, then a video. The image is laid over the first second of the video.\n\n"+
		"Large-file downloads: %s\n"+
		"Videos processed: %d\n"+
		"Uptime: %s\n\n"+
		"Banner: %s\nVideo: %s\n\n"+
		"🖼 Send your banner now.",
		onOff(unrestricted), s.Processed, s.Uptime.Truncate(time.Second), media.ImageFormats, media.VideoFormats)
}

func textSendBanner() string {
	return "🖼 Send your banner image.\n\nFormats: " + media.ImageFormats
}

func textBannerSaved(size int64, took time.Duration, via acquire.Path, replaced bool) string {
	head := "✅ Banner ready"
	if replaced {
		head = "✅ Banner replaced"
	}
	return fmt.Sprintf("%s in %s\n\nSize: %s\nVia: %s\n\n📹 Now send the video (large files are fine).",
		head, seconds(took), formatSize(size), viaLabel(via))
}

func textWrongContent(st session.State) string {
	switch st {
	case session.WaitingBanner:
		return "❌ A banner image is needed.\n\nFormats: " + media.ImageFormats + "\n🔄 /start to begin again"
	case session.WaitingVideo:
		return "❌ A video is needed.\n\nFormats: " + media.VideoFormats + "\n🔄 /start to begin again"
	default:
		return "Send /start to begin."
	}
}

func textHelp() string {
	return "❓ How it works\n\n" +
		"1. /start\n2. Send the banner image\n3. Send the video\n4. Get the video back with the banner on its first second\n\n" +
		"Banner: " + media.ImageFormats + "\nVideo: " + media.VideoFormats + "\n\n" +
		"Tips:\n• Send big videos as a file (document)\n• Processing usually takes 15 to 180 seconds\n\n" +
		"/start restart\n/cancel drop the current banner\n/stats statistics\n/help this message"
}

func textStats(s StatsSnapshot, unrestricted bool, active int) string {
	return fmt.Sprintf("📊 Statistics\n\n"+
		"Processed: %d\nAverage: %s\nFastest: %s\nLargest input: %s\nErrors: %d\n\n"+
		"Active users: %d\nUptime: %s\nLarge-file downloads: %s",
		s.Processed, seconds(s.Average), seconds(s.Fastest), formatSize(s.Largest), s.Errors,
		active, s.Uptime.Truncate(time.Second), onOff(unrestricted))
}

func textSettings(o Options, unrestricted bool) string {
	return fmt.Sprintf("⚙️ Settings\n\n"+
		"Max file size: %s\nProcessing timeout: %s\nJob budget: %s\nLarge-file downloads: %s",
		formatSize(o.MaxFileSize), o.Budget.Ceiling, o.JobBudget, onOff(unrestricted))
}

func textDownloading(what string, size int64, pct int) string {
	if pct < 0 {
		return fmt.Sprintf("⬇️ Downloading %s (%s)…", what, formatSize(size))
	}
	return fmt.Sprintf("⬇️ Downloading %s… %d%%", what, pct)
}

func textProcessing(took time.Duration, deadline time.Duration) string {
	return fmt.Sprintf("⚙️ Adding banner…\n\n✅ Download: %s\n⏱ Limit: %s", seconds(took), deadline)
}

func textUploading(size int64) string { return "⬆️ Uploading " + formatSize(size) + "…" }

func textCaption(total, download, process time.Duration, size int64) string {
	return fmt.Sprintf("✅ Done in %s\n⬇️ %s · ⚙️ %s · %s\n🔄 /start for another video",
		seconds(total), seconds(download), seconds(process), formatSize(size))
}

func textLink(url string, size int64) string {
	return fmt.Sprintf("✅ Done. The file (%s) is too large to send here.\n\nDownload: %s\nThe link expires in about 6 days.", formatSize(size), url)
}

func textIdleHint() string { return "✅ Session closed. Send /start to begin again." }

// errorText turns a pipeline error into a message with a remediation.
func errorText(err error) string {
	var (
		se *StateError
		sz *SizeError
		be *BannerError
		ae *acquire.Error
		te *transform.Error
		de *deliver.Error
	)
	switch {
	case errors.As(err, &se):
		return "❌ Your banner was lost. Send /start and upload it again."
	case errors.As(err, &sz):
		return fmt.Sprintf("❌ The video is %s; the limit is %s. Send a smaller file.", formatSize(sz.Size), formatSize(sz.Limit))
	case errors.As(err, &be):
		return "❌ That image could not be read. Send it as a JPG or PNG."
	case errors.As(err, &ae):
		switch ae.Kind {
		case acquire.KindSizeExceeded:
			return "❌ The file is too large to download right now. Send a file under 20 MB or try again later."
		case acquire.KindNotFound:
			return "❌ The file is no longer available. Send it again."
		case acquire.KindCanceled:
			return canceledText(err)
		default:
			return "❌ Download failed. Send the file again, ideally as a document."
		}
	case errors.As(err, &te):
		switch te.Kind {
		case transform.KindTimeout:
			return "❌ Processing took too long. Try a shorter or smaller video."
		case transform.KindCanceled:
			return canceledText(err)
		case transform.KindQueue:
			return "❌ The processing service is unavailable. Try again in a moment."
		default:
			msg := "❌ Processing failed. Try a different format such as MP4."
			if line := lastLine(te.Stderr); line != "" {
				msg += "\n\nDetails: " + line
			}
			return msg
		}
	case errors.As(err, &de):
		return "❌ Sending the result failed. Try a smaller video."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return canceledText(err)
	default:
		return "❌ Something went wrong. Send /start and try again."
	}
}

func canceledText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "❌ The job ran out of time. Try a smaller video."
	}
	return "⏹ Canceled."
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
