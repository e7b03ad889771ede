package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/transcribot/pkg/audio"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe/whisper"
)

// inferenceRequest is what the fake whisper-server saw.
type inferenceRequest struct {
	fileName string
	media    []byte
	fields   map[string]string
}

// newFakeServer serves media under /media/ and answers POST /inference with
// body and status.
func newFakeServer(t *testing.T, media []byte, status int, body any) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []inferenceRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /media/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(media)
	})
	mux.HandleFunc("POST /inference", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		req := inferenceRequest{fileName: hdr.Filename, media: data, fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), seen...)
	}
}

func runJob(t *testing.T, p transcribe.Provider, fileURL string) transcribe.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := p.Submit(ctx, fileURL)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := p.AwaitTerminal(ctx, id)
	if err != nil {
		t.Fatalf("AwaitTerminal: %v", err)
	}
	return job
}

func TestNewServer_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewServer(whisper.ServerConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestServer_TranscribesWAV(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(make([]byte, 3200), audio.SampleRate, 1)
	srv, seen := newFakeServer(t, wav, http.StatusOK, map[string]any{
		"language": "en",
		"text":     " Hello there. General Kenobi.",
		"segments": []map[string]any{
			{"start": 0.0, "end": 1.5, "text": " Hello there."},
			{"start": 1.5, "end": 3.25, "text": " General Kenobi."},
		},
	})

	p, err := whisper.NewServer(whisper.ServerConfig{URL: srv.URL + "/", Language: "en", Model: "base.en"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })

	job := runJob(t, p, srv.URL+"/media/note.wav")
	if job.Status != transcribe.StatusSucceeded {
		t.Fatalf("status = %s, error = %q", job.Status, job.Error)
	}
	out, ok := job.Output.(whisper.Transcript)
	if !ok {
		t.Fatalf("output type = %T", job.Output)
	}
	if out.Language != "en" || len(out.Segments) != 2 {
		t.Fatalf("transcript = %+v", out)
	}
	if out.Segments[1].End != 3250*time.Millisecond {
		t.Errorf("segment end = %v, want 3.25s", out.Segments[1].End)
	}
	text, err := p.Format(job.Output)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Hello there.\nGeneral Kenobi." {
		t.Errorf("text = %q", text)
	}

	reqs := seen()
	if len(reqs) != 1 {
		t.Fatalf("inference calls = %d, want 1", len(reqs))
	}
	got := reqs[0]
	if got.fileName != "note.wav" {
		t.Errorf("file name = %q", got.fileName)
	}
	if string(got.media) != string(wav) {
		t.Error("WAV media was altered before upload")
	}
	for k, want := range map[string]string{"response_format": "verbose_json", "language": "en", "model": "base.en"} {
		if got.fields[k] != want {
			t.Errorf("field %s = %q, want %q", k, got.fields[k], want)
		}
	}
}

func TestServer_UnknownContainerSentAsIs(t *testing.T) {
	t.Parallel()

	media := []byte("ID3\x04\x00not really an mp3")
	srv, seen := newFakeServer(t, media, http.StatusOK, map[string]any{"text": "plain text only"})

	p, err := whisper.NewServer(whisper.ServerConfig{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })

	job := runJob(t, p, srv.URL+"/media/track.mp3")
	if job.Status != transcribe.StatusSucceeded {
		t.Fatalf("status = %s, error = %q", job.Status, job.Error)
	}
	text, _ := p.Format(job.Output)
	if text != "plain text only" {
		t.Errorf("text = %q", text)
	}
	reqs := seen()
	if len(reqs) != 1 || reqs[0].fileName != "track.mp3" || string(reqs[0].media) != string(media) {
		t.Fatalf("requests = %+v", reqs)
	}
	if _, ok := reqs[0].fields["language"]; ok {
		t.Error("language field sent without a configured language")
	}
}

func TestServer_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      any
		mediaPath string
		wantErr   string
	}{
		{"server 500", http.StatusInternalServerError, map[string]string{"error": "boom"}, "/media/a.wav", "500"},
		{"error body", http.StatusOK, map[string]string{"error": "model not loaded"}, "/media/a.wav", "model not loaded"},
		{"media missing", http.StatusOK, map[string]string{"text": "x"}, "/nope", "fetch media"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newFakeServer(t, []byte("RIFF"), tc.status, tc.body)
			p, err := whisper.NewServer(whisper.ServerConfig{URL: srv.URL})
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = p.Close() })

			job := runJob(t, p, srv.URL+tc.mediaPath)
			if job.Status != transcribe.StatusFailed {
				t.Fatalf("status = %s, want failed", job.Status)
			}
			if !strings.Contains(job.Error, tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", job.Error, tc.wantErr)
			}
		})
	}
}

func TestServer_MediaSizeCap(t *testing.T) {
	t.Parallel()

	srv, seen := newFakeServer(t, make([]byte, 2048), http.StatusOK, map[string]string{"text": "x"})
	p, err := whisper.NewServer(whisper.ServerConfig{URL: srv.URL, MaxMediaBytes: 1024})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })

	job := runJob(t, p, srv.URL+"/media/big.wav")
	if job.Status != transcribe.StatusFailed || !strings.Contains(job.Error, "larger than") {
		t.Fatalf("job = %+v", job)
	}
	if n := len(seen()); n != 0 {
		t.Errorf("inference calls = %d, want 0", n)
	}
}
