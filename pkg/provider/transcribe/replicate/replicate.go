// Package replicate provides a transcription job provider backed by hosted
// models on replicate.com.
//
// A Replicate prediction maps directly onto a transcription job: it is created
// with the uploaded media URL, reports starting/processing while it runs and
// exposes its log tail, and can be cancelled. Which model runs is chosen by a
// [Model], which also supplies the pure output formatter.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	r8 "github.com/replicate/replicate-go"

	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// DefaultPollInterval is how often AwaitTerminal reloads a prediction.
const DefaultPollInterval = time.Second

// Model describes one hosted transcription model.
type Model interface {
	// Name returns the "owner/name" identifier on Replicate.
	Name() string

	// Input builds the prediction input for the media at fileURL.
	Input(fileURL string) r8.PredictionInput

	// Format turns the raw prediction output into transcript text.
	Format(output any) (string, error)
}

// Config holds the settings for [New].
type Config struct {
	// Token is the Replicate API token. Required.
	Token string

	// Version is the model version hash to run. Required.
	Version string

	// Model selects the hosted model. Required.
	Model Model

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string

	// PollInterval is the reload interval while awaiting a prediction.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// HTTPClient overrides the client used for API calls.
	HTTPClient *http.Client
}

// Provider implements transcribe.Provider on Replicate predictions.
type Provider struct {
	client       *r8.Client
	version      string
	model        Model
	pollInterval time.Duration
}

var _ transcribe.Provider = (*Provider)(nil)

// New creates a Replicate provider.
func New(cfg Config) (*Provider, error) {
	var errs []error
	if cfg.Token == "" {
		errs = append(errs, errors.New("token must not be empty"))
	}
	if cfg.Version == "" {
		errs = append(errs, errors.New("model version must not be empty"))
	}
	if cfg.Model == nil {
		errs = append(errs, errors.New("model must be set"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}

	opts := []r8.ClientOption{r8.WithToken(cfg.Token)}
	if cfg.BaseURL != "" {
		opts = append(opts, r8.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, r8.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := r8.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: create client: %w", err)
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Provider{
		client:       client,
		version:      cfg.Version,
		model:        cfg.Model,
		pollInterval: interval,
	}, nil
}

// Submit implements transcribe.Provider.
func (p *Provider) Submit(ctx context.Context, fileURL string) (string, error) {
	pred, err := p.client.CreatePrediction(ctx, p.version, p.model.Input(fileURL), nil, false)
	if err != nil {
		return "", fmt.Errorf("replicate: create prediction: %w", classify(err))
	}
	slog.Info("replicate: prediction created", "model", p.model.Name(), "job_id", pred.ID)
	return pred.ID, nil
}

// Poll implements transcribe.Provider.
func (p *Provider) Poll(ctx context.Context, jobID string) (transcribe.Job, error) {
	pred, err := p.client.GetPrediction(ctx, jobID)
	if err != nil {
		return transcribe.Job{}, fmt.Errorf("replicate: get prediction %s: %w", jobID, classify(err))
	}
	return toJob(pred), nil
}

// AwaitTerminal implements transcribe.Provider by reloading the prediction
// every poll interval until it reaches a terminal status.
func (p *Provider) AwaitTerminal(ctx context.Context, jobID string) (transcribe.Job, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		job, err := p.Poll(ctx, jobID)
		if err != nil {
			return transcribe.Job{}, err
		}
		if job.Status.IsTerminal() {
			slog.Debug("replicate: prediction finished", "job_id", jobID, "status", job.Status)
			return job, nil
		}
		select {
		case <-ctx.Done():
			return transcribe.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel implements transcribe.Provider.
func (p *Provider) Cancel(ctx context.Context, jobID string) error {
	if _, err := p.client.CancelPrediction(ctx, jobID); err != nil {
		return fmt.Errorf("replicate: cancel prediction %s: %w", jobID, classify(err))
	}
	return nil
}

// Format implements transcribe.Provider.
func (p *Provider) Format(output any) (string, error) {
	return p.model.Format(output)
}

func toJob(pred *r8.Prediction) transcribe.Job {
	job := transcribe.Job{
		ID:     pred.ID,
		Status: transcribe.Status(pred.Status),
		Output: pred.Output,
	}
	if pred.Logs != nil {
		job.Log = lastLine(*pred.Logs)
	}
	if pred.Error != nil {
		job.Error = fmt.Sprint(pred.Error)
	}
	return job
}

// lastLine returns the last non-empty line of the cumulative model log.
func lastLine(logs string) string {
	logs = strings.TrimRight(logs, "\n ")
	if i := strings.LastIndexByte(logs, '\n'); i >= 0 {
		return logs[i+1:]
	}
	return logs
}

// classify marks rate limiting and gateway errors as transient. Dial errors
// and timeouts are recognised by transcribe.IsTransient on their own.
func classify(err error) error {
	var apiErr *r8.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return transcribe.Transient(err)
		}
	}
	return err
}

// mergeInput returns base with overrides applied on top.
func mergeInput(base r8.PredictionInput, overrides map[string]any) r8.PredictionInput {
	out := make(r8.PredictionInput, len(base)+len(overrides))
	maps.Copy(out, base)
	maps.Copy(out, overrides)
	return out
}
