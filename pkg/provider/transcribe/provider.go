// Package transcribe defines the Provider interface for transcription job
// backends.
//
// A transcription provider wraps a batch transcription service (a hosted
// prediction API such as Replicate, or a local whisper.cpp engine) and exposes
// it as an asynchronous job API: a job is submitted with a publicly reachable
// media URL, its progress can be polled, the caller can block until it reaches
// a terminal status, and a running job can be cancelled.
//
// The raw output of a finished job is provider specific. Each provider
// supplies a pure Format function that turns that output into the transcript
// text delivered to users.
//
// Implementations must be safe for concurrent use.
package transcribe

import (
	"context"
	"errors"
)

// Status is the lifecycle state of a transcription job as reported by a
// provider.
type Status string

const (
	// StatusStarting means the job is accepted but has not started running.
	// It is the "queued" state of the job lifecycle.
	StatusStarting Status = "starting"

	// StatusProcessing means the job is running.
	StatusProcessing Status = "processing"

	// StatusSucceeded is terminal: the job finished and produced output.
	StatusSucceeded Status = "succeeded"

	// StatusFailed is terminal: the job finished without output.
	StatusFailed Status = "failed"

	// StatusCanceled is terminal: the job was cancelled before it finished.
	StatusCanceled Status = "canceled"
)

// IsTerminal reports whether s is one of succeeded, failed or canceled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsRunning reports whether s is starting or processing.
func (s Status) IsRunning() bool {
	return s == StatusStarting || s == StatusProcessing
}

// IsValid reports whether s is a recognised status value.
func (s Status) IsValid() bool {
	return s.IsRunning() || s.IsTerminal()
}

// ErrJobNotFound is returned when a job id is unknown to the provider.
var ErrJobNotFound = errors.New("transcribe: job not found")

// Job is a snapshot of a provider job.
type Job struct {
	// ID is the opaque identifier assigned by the provider on submission.
	ID string

	// Status is the job's current lifecycle state.
	Status Status

	// Log is the most recent progress text reported by the provider. May be
	// empty while the job waits in the provider's queue.
	Log string

	// Output is the raw, provider-specific result. Only meaningful when
	// Status is [StatusSucceeded]; pass it to [Provider.Format].
	Output any

	// Error carries the provider's failure description when Status is
	// [StatusFailed].
	Error string
}

// Provider is the abstraction over any transcription job backend.
type Provider interface {
	// Submit starts a new job transcribing the media at fileURL and returns
	// the job id. Connectivity failures should be reported so that
	// [IsTransient] recognises them; the caller owns the retry policy.
	Submit(ctx context.Context, fileURL string) (string, error)

	// Poll returns the current snapshot of the job without waiting.
	Poll(ctx context.Context, jobID string) (Job, error)

	// AwaitTerminal blocks until the job reaches a terminal status or ctx is
	// cancelled, and returns the final snapshot.
	AwaitTerminal(ctx context.Context, jobID string) (Job, error)

	// Cancel asks the backend to stop the job. It returns once the request has
	// been delivered; the job's terminal status is observed through Poll or
	// AwaitTerminal.
	Cancel(ctx context.Context, jobID string) error

	// Format converts the raw output of a succeeded job into transcript text.
	// It must be a pure function of output.
	Format(output any) (string, error)
}
