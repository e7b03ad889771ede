// Package mock provides a test double for the transcribe.Provider interface.
//
// Responses are scripted through exported fields before the provider is used.
// Every call is recorded under a mutex so tests can assert on call counts and
// arguments after the fact.
//
// Example:
//
//	p := &mock.Provider{
//	    JobID:    "job-1",
//	    PollJobs: []transcribe.Job{{Status: transcribe.StatusProcessing, Log: "50%"}},
//	    AwaitJob: transcribe.Job{Status: transcribe.StatusSucceeded, Output: "hi"},
//	}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// JobID is returned by a successful Submit. Defaults to "job-1".
	JobID string

	// SubmitErrs are returned by successive Submit calls before SubmitErr and
	// finally success apply.
	SubmitErrs []error

	// SubmitErr, if non-nil, is returned by every Submit call once SubmitErrs
	// is exhausted.
	SubmitErr error

	// PollJobs are returned by successive Poll calls. The last element is
	// repeated once the slice is exhausted. ID is filled in automatically.
	PollJobs []transcribe.Job

	// PollErr, if non-nil, is returned by every Poll call.
	PollErr error

	// AwaitJob is returned by AwaitTerminal once AwaitErrs is exhausted.
	AwaitJob transcribe.Job

	// AwaitErrs are returned by successive AwaitTerminal calls before AwaitJob.
	AwaitErrs []error

	// AwaitGate, if non-nil, makes AwaitTerminal block until the channel is
	// closed or ctx is cancelled.
	AwaitGate <-chan struct{}

	// CancelErr, if non-nil, is returned by Cancel.
	CancelErr error

	// CancelGate, if non-nil, makes Cancel block after recording the call
	// until the channel is closed or ctx is cancelled.
	CancelGate <-chan struct{}

	// FormatFunc overrides Format. By default string outputs are returned
	// unchanged and other values are rendered with fmt.Sprint.
	FormatFunc func(output any) (string, error)

	// --- Call records ---

	SubmitCalls []string
	PollCalls   []string
	AwaitCalls  []string
	CancelCalls []string
}

// Compile-time assertion.
var _ transcribe.Provider = (*Provider)(nil)

func (p *Provider) jobID() string {
	if p.JobID == "" {
		return "job-1"
	}
	return p.JobID
}

// Submit records the call and returns the next scripted result.
func (p *Provider) Submit(_ context.Context, fileURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SubmitCalls = append(p.SubmitCalls, fileURL)
	if len(p.SubmitErrs) > 0 {
		err := p.SubmitErrs[0]
		p.SubmitErrs = p.SubmitErrs[1:]
		return "", err
	}
	if p.SubmitErr != nil {
		return "", p.SubmitErr
	}
	return p.jobID(), nil
}

// Poll records the call and returns the next scripted snapshot.
func (p *Provider) Poll(_ context.Context, jobID string) (transcribe.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PollCalls = append(p.PollCalls, jobID)
	if p.PollErr != nil {
		return transcribe.Job{}, p.PollErr
	}
	if len(p.PollJobs) == 0 {
		return transcribe.Job{ID: jobID, Status: transcribe.StatusStarting}, nil
	}
	job := p.PollJobs[0]
	if len(p.PollJobs) > 1 {
		p.PollJobs = p.PollJobs[1:]
	}
	job.ID = jobID
	return job, nil
}

// AwaitTerminal records the call, optionally blocks on AwaitGate, and returns
// the next scripted result.
func (p *Provider) AwaitTerminal(ctx context.Context, jobID string) (transcribe.Job, error) {
	p.mu.Lock()
	p.AwaitCalls = append(p.AwaitCalls, jobID)
	gate := p.AwaitGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transcribe.Job{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.AwaitErrs) > 0 {
		err := p.AwaitErrs[0]
		p.AwaitErrs = p.AwaitErrs[1:]
		return transcribe.Job{}, err
	}
	job := p.AwaitJob
	job.ID = jobID
	return job, nil
}

// Cancel records the call, optionally blocks on CancelGate, and returns
// CancelErr.
func (p *Provider) Cancel(ctx context.Context, jobID string) error {
	p.mu.Lock()
	p.CancelCalls = append(p.CancelCalls, jobID)
	gate := p.CancelGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CancelErr
}

// Format applies FormatFunc or the default rendering.
func (p *Provider) Format(output any) (string, error) {
	p.mu.Lock()
	fn := p.FormatFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(output)
	}
	if s, ok := output.(string); ok {
		return s, nil
	}
	return fmt.Sprint(output), nil
}

// SubmitCallCount returns the number of Submit calls. Thread-safe.
func (p *Provider) SubmitCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SubmitCalls)
}

// PollCallCount returns the number of Poll calls. Thread-safe.
func (p *Provider) PollCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PollCalls)
}

// AwaitCallCount returns the number of AwaitTerminal calls. Thread-safe.
func (p *Provider) AwaitCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.AwaitCalls)
}

// CancelCallCount returns the number of Cancel calls. Thread-safe.
func (p *Provider) CancelCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CancelCalls)
}
