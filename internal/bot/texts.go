package bot

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// HelpText is the reply to messages without media and to /start and /help.
const HelpText = "Send me any audio/video file or voice message, and I will transcribe the audio from it for you. " +
	"Transcription takes roughly a third of the audio length, excluding silences."

const ownerHelpText = HelpText + "\n\n" +
	"/history - list the last 10 transcriptions\n" +
	"/search <query> - search old transcripts"

// Status message fragments.
const (
	textPreparing    = " Preparing for transcription..."
	textUploading    = "\nUploading..."
	textUploaded     = "\nUpload complete."
	textQueued       = "\n\nWaiting in queue..."
	textTranscribing = "\n\nTranscribing..."
	textCancelled    = "Cancelled transcription."
	textNoLongerRuns = "This transcription is no longer running."
	cancelButtonText = "Cancel"
	maxErrorRunes    = 3000
)

// FormatHHMMSS renders d as H:MM:SS, rounding down to whole seconds. Hours
// are not wrapped at 24.
func FormatHHMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// HumanSize renders n bytes with decimal units, e.g. "12.3 MB".
func HumanSize(n int64) string {
	const unit = 1000
	if n < unit {
		if n == 1 {
			return "1 Byte"
		}
		return fmt.Sprintf("%d Bytes", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 5; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}

// progressLine renders download progress below prefix.
func progressLine(prefix string, received, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%s\n%s", prefix, HumanSize(received))
	}
	pct := float64(received) / float64(total) * 100
	return fmt.Sprintf("%s\n%s/%s (%.1f%%)", prefix, HumanSize(received), HumanSize(total), pct)
}

var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// sanitize prepares an error text for a chat reply: signed URL query strings
// are dropped and the text is cut to a length every platform accepts.
func sanitize(text string) string {
	text = urlPattern.ReplaceAllStringFunc(text, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.RawQuery == "" {
			return raw
		}
		for k := range u.Query() {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-") {
				u.RawQuery = ""
				return u.String() + "?[redacted]"
			}
		}
		return raw
	})
	return truncateRunes(text, maxErrorRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
