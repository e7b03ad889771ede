// Package whisper provides transcription job providers built on whisper.cpp.
//
// [Server] talks to a running whisper-server over its REST API (POST
// /inference). [Native] links whisper.cpp directly through its Go bindings
// and is only available when built with the "whispercpp" tag.
//
// Both run each job in a goroutine managed by [transcribe.LocalJobs], so they
// expose the same asynchronous job API as hosted providers.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// DefaultMaxMediaBytes caps how much media a job downloads.
const DefaultMaxMediaBytes = 512 << 20

// Segment is one recognised span of speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcript is the raw output of a whisper job.
type Transcript struct {
	Language string
	Segments []Segment
}

// Format renders a [Transcript] as plain text, one segment per line.
func Format(output any) (string, error) {
	var t Transcript
	switch v := output.(type) {
	case Transcript:
		t = v
	case *Transcript:
		if v == nil {
			return "", errors.New("whisper: nil transcript")
		}
		t = *v
	default:
		return "", fmt.Errorf("whisper: unexpected output type %T", output)
	}

	lines := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// fetchMedia downloads fileURL and returns its content and file name.
func fetchMedia(ctx context.Context, client *http.Client, fileURL string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: build media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whisper: fetch media: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("whisper: read media: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("whisper: media larger than %d bytes", limit)
	}
	return data, path.Base(resp.Request.URL.Path), nil
}
