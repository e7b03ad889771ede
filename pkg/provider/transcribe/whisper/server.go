package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/MrWong99/transcribot/pkg/audio"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// ServerConfig holds the settings for [NewServer].
type ServerConfig struct {
	// URL is the whisper-server base URL, e.g. "http://localhost:8080".
	// Required.
	URL string

	// Model is sent as the "model" form field. Optional.
	Model string

	// Language is the BCP-47 language hint. Empty lets whisper auto-detect.
	Language string

	// Concurrency is how many jobs run against the server at once.
	// Values below 1 mean 1.
	Concurrency int

	// MaxMediaBytes caps media downloads. Zero means DefaultMaxMediaBytes.
	MaxMediaBytes int64

	// HTTPClient overrides the client used for downloads and inference.
	HTTPClient *http.Client
}

// Server is a transcribe.Provider that forwards media to a whisper-server.
type Server struct {
	*transcribe.LocalJobs

	url      string
	model    string
	language string
	maxBytes int64
	client   *http.Client
}

var _ transcribe.Provider = (*Server)(nil)

// NewServer creates a Server provider.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.URL == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	s := &Server{
		url:      strings.TrimRight(cfg.URL, "/"),
		model:    cfg.Model,
		language: cfg.Language,
		maxBytes: cfg.MaxMediaBytes,
		client:   cfg.HTTPClient,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxMediaBytes
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Minute}
	}
	s.LocalJobs = transcribe.NewLocalJobs(s.run, cfg.Concurrency)
	return s, nil
}

// Format implements transcribe.Provider.
func (s *Server) Format(output any) (string, error) {
	return Format(output)
}

func (s *Server) run(ctx context.Context, fileURL string, report func(string)) (any, error) {
	report("Downloading media")
	data, name, err := fetchMedia(ctx, s.client, fileURL, s.maxBytes)
	if err != nil {
		return nil, err
	}

	// Voice notes go to the server as 16 kHz mono WAV.
	if audio.Sniff(data) == audio.ContainerOgg {
		pcm, err := audio.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("whisper: decode voice note: %w", err)
		}
		data = audio.EncodeWAV(pcm, audio.SampleRate, 1)
		name = strings.TrimSuffix(name, path.Ext(name)) + ".wav"
	}

	report("Transcribing")
	return s.infer(ctx, data, name)
}

// verboseResponse is the verbose_json body returned by /inference.
type verboseResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

func (s *Server) infer(ctx context.Context, media []byte, name string) (Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(media); err != nil {
		return Transcript{}, fmt.Errorf("whisper: write media: %w", err)
	}
	fields := map[string]string{"response_format": "verbose_json"}
	if s.language != "" {
		fields["language"] = s.language
	}
	if s.model != "" {
		fields["model"] = s.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/inference", &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper: POST /inference: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var vr verboseResponse
	if err := json.Unmarshal(raw, &vr); err != nil {
		return Transcript{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	if vr.Error != "" {
		return Transcript{}, fmt.Errorf("whisper: server error: %s", vr.Error)
	}

	t := Transcript{Language: vr.Language}
	for _, seg := range vr.Segments {
		t.Segments = append(t.Segments, Segment{
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
			Text:  seg.Text,
		})
	}
	if len(t.Segments) == 0 && strings.TrimSpace(vr.Text) != "" {
		t.Segments = []Segment{{Text: vr.Text}}
	}
	return t, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
