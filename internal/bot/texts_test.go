package bot

import (
	"strings"
	"testing"
	"time"
)

func TestFormatHHMMSS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00"},
		{59*time.Second + 900*time.Millisecond, "0:00:59"},
		{65 * time.Second, "0:01:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{26 * time.Hour, "26:00:00"},
		{-time.Second, "0:00:00"},
	}
	for _, tc := range tests {
		if got := FormatHHMMSS(tc.in); got != tc.want {
			t.Errorf("FormatHHMMSS(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{1, "1 Byte"},
		{999, "999 Bytes"},
		{1000, "1.0 kB"},
		{2048, "2.0 kB"},
		{12_345_678, "12.3 MB"},
		{3_500_000_000, "3.5 GB"},
	}
	for _, tc := range tests {
		if got := HumanSize(tc.in); got != tc.want {
			t.Errorf("HumanSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProgressLine(t *testing.T) {
	t.Parallel()

	if got := progressLine("Downloading 'a.mp3', (2.0 kB)...", 500, 2000); got != "Downloading 'a.mp3', (2.0 kB)...\n500 Bytes/2.0 kB (25.0%)" {
		t.Errorf("got %q", got)
	}
	if got := progressLine("p", 1500, 0); got != "p\n1.5 kB" {
		t.Errorf("unknown total: got %q", got)
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	in := `fetch https://s3.example/bucket/a.ogg?X-Amz-Signature=abc&X-Amz-Credential=key: 403`
	got := sanitize(in)
	if strings.Contains(got, "abc") || strings.Contains(got, "Credential") {
		t.Errorf("signature leaked: %q", got)
	}
	if !strings.Contains(got, "https://s3.example/bucket/a.ogg?[redacted]") {
		t.Errorf("got %q", got)
	}

	plain := "see https://example.com/page?lang=en"
	if got := sanitize(plain); got != plain {
		t.Errorf("unsigned URL changed: %q", got)
	}

	long := strings.Repeat("x", maxErrorRunes+10)
	if got := sanitize(long); len([]rune(got)) != maxErrorRunes+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("long text not truncated: %d runes", len([]rune(got)))
	}
}
