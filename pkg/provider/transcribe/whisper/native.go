//go:build whispercpp

// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/transcribot/pkg/audio"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// Native is a transcribe.Provider that runs whisper.cpp in-process. The model
// is loaded once; every job gets its own context so jobs never share decoder
// state. Jobs run one at a time.
type Native struct {
	*transcribe.LocalJobs

	model    whisperlib.Model
	language string
	threads  uint
	maxBytes int64
	client   *http.Client
}

var _ transcribe.Provider = (*Native)(nil)

// NewNative loads the model at cfg.ModelPath. Call Close to release it.
func NewNative(cfg NativeConfig) (*Native, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", cfg.ModelPath, err)
	}

	n := &Native{
		model:    model,
		language: cfg.Language,
		threads:  cfg.Threads,
		maxBytes: cfg.MaxMediaBytes,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
	if n.language == "" {
		n.language = "auto"
	}
	if n.maxBytes <= 0 {
		n.maxBytes = DefaultMaxMediaBytes
	}
	n.LocalJobs = transcribe.NewLocalJobs(n.run, 1)
	return n, nil
}

// Format implements transcribe.Provider.
func (n *Native) Format(output any) (string, error) {
	return Format(output)
}

// Close stops running jobs and releases the model.
func (n *Native) Close() error {
	_ = n.LocalJobs.Close()
	return n.model.Close()
}

func (n *Native) run(ctx context.Context, fileURL string, report func(string)) (any, error) {
	report("Downloading media")
	data, _, err := fetchMedia(ctx, n.client, fileURL, n.maxBytes)
	if err != nil {
		return nil, err
	}
	pcm, err := audio.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("whisper: decode media: %w", err)
	}
	samples := audio.ToFloat32(pcm)

	wctx, err := n.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", n.language, err)
	}
	if n.threads > 0 {
		wctx.SetThreads(n.threads)
	}

	segments := 0
	report(fmt.Sprintf("Transcribing %s of audio", audio.Duration(pcm, audio.SampleRate, 1).Round(time.Second)))
	err = wctx.Process(samples,
		func() bool { return ctx.Err() == nil },
		func(whisperlib.Segment) { segments++ },
		func(progress int) { report(fmt.Sprintf("%d%% done, %d segments", progress, segments)) },
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("whisper: process: %w", err)
	}

	t := Transcript{Language: wctx.DetectedLanguage()}
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		t.Segments = append(t.Segments, Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	slog.Debug("whisper: native transcription finished", "segments", len(t.Segments), "language", t.Language)
	return t, nil
}
