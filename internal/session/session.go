// Package session drives one transcription job from submission to a terminal
// status.
//
// A [Session] submits a media URL to a [transcribe.Provider], optionally relays
// periodic progress snapshots to a callback, waits for the job to finish, and
// reconciles user cancellation with whatever the provider reports. Each
// session owns its own cancellation flag; there is no process-wide registry.
//
// All exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// Default session parameters.
const (
	defaultUpdateInterval = 3 * time.Second
	defaultSubmitAttempts = 3
	defaultAwaitRetries   = 3
)

// waitingText is shown in place of an empty provider log.
const waitingText = "Waiting in queue..."

var (
	// ErrSubmissionExceeded is returned by Submit when every attempt failed
	// with a transient error.
	ErrSubmissionExceeded = errors.New("session: submission attempts exceeded")

	// ErrTranscriptionTimeout is returned by Await when waiting for the
	// terminal status kept failing transiently.
	ErrTranscriptionTimeout = errors.New("session: transcription timed out")

	// ErrNotSubmitted is returned by operations that need a job id before
	// Submit has succeeded.
	ErrNotSubmitted = errors.New("session: no job submitted")

	// ErrAlreadySubmitted is returned by a second call to Submit.
	ErrAlreadySubmitted = errors.New("session: job already submitted")
)

// State is the lifecycle position of a [Session].
type State int

const (
	StateCreated State = iota
	StateSubmitted
	StatePolling
	StateSucceeded
	StateFailed
	StateCanceled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProgressFunc receives a human-readable progress line of the form
// "<status>: <log>".
type ProgressFunc func(ctx context.Context, text string)

// Config configures a [Session].
type Config struct {
	// Provider runs the transcription job. Required.
	Provider transcribe.Provider

	// Progress, if non-nil, is invoked from a background goroutine with a
	// fresh progress line every UpdateInterval while the job is queued or
	// running.
	Progress ProgressFunc

	// UpdateInterval is the period between progress polls. Defaults to 3s.
	UpdateInterval time.Duration

	// SubmitAttempts is the total number of Submit attempts made before
	// giving up on transient failures. Defaults to 3.
	SubmitAttempts int

	// AwaitRetries is the number of times a transient failure while waiting
	// for the result is retried. Defaults to 3; a negative value disables
	// retries.
	AwaitRetries int
}

// Result is the outcome of a finished session.
type Result struct {
	JobID string

	// Status is one of succeeded, failed or canceled.
	Status transcribe.Status

	// Transcript is set only when Status is succeeded.
	Transcript string

	// Error carries the provider's failure description, if any.
	Error string

	Elapsed time.Duration
}

// Session is one transcription job's state machine.
type Session struct {
	provider       transcribe.Provider
	progress       ProgressFunc
	interval       time.Duration
	submitAttempts int
	awaitRetries   int

	cancelRequested atomic.Bool

	mu        sync.Mutex
	state     State
	jobID     string
	startedAt time.Time

	relay     *errgroup.Group
	stopRelay context.CancelFunc
}

// New creates a [Session] in the Created state.
func New(cfg Config) *Session {
	interval := cfg.UpdateInterval
	if interval <= 0 {
		interval = defaultUpdateInterval
	}
	attempts := cfg.SubmitAttempts
	if attempts <= 0 {
		attempts = defaultSubmitAttempts
	}
	retries := cfg.AwaitRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultAwaitRetries
	}
	return &Session{
		provider:       cfg.Provider,
		progress:       cfg.Progress,
		interval:       interval,
		submitAttempts: attempts,
		awaitRetries:   retries,
	}
}

// Submit sends fileURL to the provider and returns the job id. Transient
// failures are retried until the attempt budget is spent, after which
// [ErrSubmissionExceeded] is returned. Any other failure is returned as is.
//
// When a progress callback is configured, Submit starts the relay loop. The
// loop is bound to ctx and is joined by [Session.Await] or [Session.Close].
func (s *Session) Submit(ctx context.Context, fileURL string) (string, error) {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return "", ErrAlreadySubmitted
	}
	s.mu.Unlock()

	var (
		jobID   string
		lastErr error
	)
	for attempt := 1; attempt <= s.submitAttempts; attempt++ {
		id, err := s.provider.Submit(ctx, fileURL)
		if err == nil {
			jobID = id
			lastErr = nil
			break
		}
		if !transcribe.IsTransient(err) {
			return "", fmt.Errorf("session: submit: %w", err)
		}
		slog.Warn("session: transient submit failure, retrying",
			"attempt", attempt,
			"max_attempts", s.submitAttempts,
			"err", err,
		)
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w after %d attempts: %w", ErrSubmissionExceeded, s.submitAttempts, lastErr)
	}

	s.mu.Lock()
	s.jobID = jobID
	s.state = StateSubmitted
	s.startedAt = time.Now()
	if s.progress != nil {
		relayCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(relayCtx)
		s.relay = g
		s.stopRelay = cancel
		g.Go(func() error {
			s.relayProgress(gctx, jobID)
			return nil
		})
	}
	s.mu.Unlock()

	slog.Info("session: job submitted", "job_id", jobID)
	return jobID, nil
}

// relayProgress polls the provider and forwards a progress line until the job
// leaves the queued/running states, ctx ends, or cancellation is requested.
func (s *Session) relayProgress(ctx context.Context, jobID string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if s.cancelRequested.Load() {
			return
		}
		job, err := s.provider.Poll(ctx, jobID)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			slog.Debug("session: progress poll failed", "job_id", jobID, "err", err)
		case !job.Status.IsRunning():
			return
		default:
			s.setState(StatePolling)
			s.progress(ctx, ProgressText(job))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProgressText renders a job snapshot as "<status>: <log>", substituting a
// queue notice for an empty log.
func ProgressText(job transcribe.Job) string {
	log := job.Log
	if log == "" {
		log = waitingText
	}
	return fmt.Sprintf("%s: %s", job.Status, log)
}

// Await blocks until the provider reports a terminal status and returns the
// outcome. Transient failures are retried up to the configured count, after
// which [ErrTranscriptionTimeout] is returned.
//
// If [Session.Cancel] was called before the terminal status was observed the
// result is reported as canceled, even when the provider says succeeded.
// Await always stops and joins the progress relay before returning.
func (s *Session) Await(ctx context.Context) (Result, error) {
	defer s.Close()

	s.mu.Lock()
	jobID := s.jobID
	startedAt := s.startedAt
	if jobID == "" {
		s.mu.Unlock()
		return Result{}, ErrNotSubmitted
	}
	if s.state == StateSubmitted {
		s.state = StatePolling
	}
	s.mu.Unlock()

	var (
		job transcribe.Job
		err error
	)
	for attempt := 0; ; attempt++ {
		job, err = s.provider.AwaitTerminal(ctx, jobID)
		if err == nil {
			break
		}
		if !transcribe.IsTransient(err) {
			return Result{}, fmt.Errorf("session: await %s: %w", jobID, err)
		}
		if attempt >= s.awaitRetries {
			return Result{}, fmt.Errorf("%w: job %s: %w", ErrTranscriptionTimeout, jobID, err)
		}
		slog.Warn("session: transient failure while awaiting result, retrying",
			"job_id", jobID,
			"attempt", attempt+1,
			"err", err,
		)
	}

	res := Result{
		JobID:   jobID,
		Status:  job.Status,
		Error:   job.Error,
		Elapsed: time.Since(startedAt),
	}

	if s.cancelRequested.Load() {
		res.Status = transcribe.StatusCanceled
	}

	switch res.Status {
	case transcribe.StatusSucceeded:
		text, err := s.provider.Format(job.Output)
		if err != nil {
			s.setState(StateFailed)
			return Result{}, fmt.Errorf("session: format output of %s: %w", jobID, err)
		}
		res.Transcript = text
		s.setState(StateSucceeded)
	case transcribe.StatusCanceled:
		s.setState(StateCanceled)
	case transcribe.StatusFailed:
		s.setState(StateFailed)
	default:
		s.setState(StateFailed)
		return Result{}, fmt.Errorf("session: job %s ended with non-terminal status %q", jobID, job.Status)
	}
	return res, nil
}

// Cancel records that the user asked to stop the job and asks the provider to
// cancel it. The flag is set at most once; later calls still forward to the
// provider. The local state is not changed here: the next poll or await
// observes the terminal status.
func (s *Session) Cancel(ctx context.Context) error {
	jobID := s.JobID()
	if jobID == "" {
		return ErrNotSubmitted
	}
	if s.cancelRequested.CompareAndSwap(false, true) {
		slog.Info("session: cancellation requested", "job_id", jobID)
	}
	if err := s.provider.Cancel(ctx, jobID); err != nil {
		return fmt.Errorf("session: cancel %s: %w", jobID, err)
	}
	return nil
}

// CancelRequested reports whether [Session.Cancel] has been called.
func (s *Session) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// Close stops the progress relay and waits for it to exit. Safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	stop, g := s.stopRelay, s.relay
	s.stopRelay, s.relay = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if g != nil {
		_ = g.Wait()
	}
}

// JobID returns the provider job id, or "" before a successful Submit.
func (s *Session) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns the time the job was accepted by the provider.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Terminal states never change.
	switch s.state {
	case StateSucceeded, StateFailed, StateCanceled:
		return
	}
	s.state = st
}
