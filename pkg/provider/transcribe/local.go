package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunFunc performs one local transcription of the media at fileURL. It should
// call report with human-readable progress text and must return promptly once
// ctx is cancelled. The returned value becomes [Job.Output].
type RunFunc func(ctx context.Context, fileURL string, report func(log string)) (any, error)

// finishedRetention is how long terminal jobs stay queryable before they are
// pruned on a later submission.
const finishedRetention = 15 * time.Minute

// ErrClosed is returned by [LocalJobs.Submit] after [LocalJobs.Close].
var ErrClosed = errors.New("transcribe: local job table closed")

// LocalJobs turns a synchronous [RunFunc] into the asynchronous job API of
// [Provider]. Each submitted job runs in its own goroutine; at most
// concurrency jobs run at once and the rest report [StatusStarting] until a
// slot frees up.
//
// LocalJobs implements every Provider method except Format, so local providers
// embed it and add their own formatter.
type LocalJobs struct {
	run   RunFunc
	slots chan struct{}

	mu   sync.Mutex
	jobs map[string]*localJob
	wg   sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

type localJob struct {
	mu       sync.Mutex
	snapshot Job
	cancel   context.CancelFunc
	canceled bool
	finished time.Time
	done     chan struct{}
}

// NewLocalJobs creates a job table backed by run. concurrency values below 1
// are treated as 1.
func NewLocalJobs(run RunFunc, concurrency int) *LocalJobs {
	if concurrency < 1 {
		concurrency = 1
	}
	return &LocalJobs{
		run:    run,
		slots:  make(chan struct{}, concurrency),
		jobs:   make(map[string]*localJob),
		closed: make(chan struct{}),
	}
}

// Submit registers a new job and starts it in the background. The job is not
// bound to ctx: it keeps running after Submit returns until it finishes, is
// cancelled, or the table is closed.
func (l *LocalJobs) Submit(ctx context.Context, fileURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	j := &localJob{
		snapshot: Job{ID: uuid.NewString(), Status: StatusStarting},
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// Registration happens under l.mu so that Close either sees the job and
	// cancels it, or Submit sees the table closed.
	l.mu.Lock()
	select {
	case <-l.closed:
		l.mu.Unlock()
		cancel()
		return "", ErrClosed
	default:
	}
	l.pruneLocked(time.Now())
	l.jobs[j.snapshot.ID] = j
	l.wg.Add(1)
	l.mu.Unlock()

	go l.execute(jobCtx, j, fileURL)

	return j.snapshot.ID, nil
}

func (l *LocalJobs) execute(ctx context.Context, j *localJob, fileURL string) {
	defer l.wg.Done()
	defer j.cancel()
	defer close(j.done)

	select {
	case l.slots <- struct{}{}:
		defer func() { <-l.slots }()
	case <-ctx.Done():
		j.finish(StatusCanceled, nil, "")
		return
	case <-l.closed:
		j.finish(StatusCanceled, nil, "")
		return
	}

	j.mu.Lock()
	if j.canceled {
		j.mu.Unlock()
		j.finish(StatusCanceled, nil, "")
		return
	}
	j.snapshot.Status = StatusProcessing
	j.mu.Unlock()

	out, err := l.run(ctx, fileURL, j.report)

	j.mu.Lock()
	canceled := j.canceled
	j.mu.Unlock()

	switch {
	case canceled || errors.Is(err, context.Canceled):
		j.finish(StatusCanceled, nil, "")
	case err != nil:
		slog.Warn("local transcription failed", "job_id", j.snapshot.ID, "err", err)
		j.finish(StatusFailed, nil, err.Error())
	default:
		j.finish(StatusSucceeded, out, "")
	}
}

func (j *localJob) report(log string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.snapshot.Status.IsTerminal() {
		j.snapshot.Log = log
	}
}

func (j *localJob) finish(status Status, out any, errText string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshot.Status = status
	j.snapshot.Output = out
	j.snapshot.Error = errText
	j.finished = time.Now()
}

func (j *localJob) view() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshot
}

func (l *LocalJobs) lookup(id string) (*localJob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, id)
	}
	return j, nil
}

// pruneLocked drops jobs that finished longer than finishedRetention ago.
// Must be called with l.mu held.
func (l *LocalJobs) pruneLocked(now time.Time) {
	for id, j := range l.jobs {
		j.mu.Lock()
		stale := !j.finished.IsZero() && now.Sub(j.finished) > finishedRetention
		j.mu.Unlock()
		if stale {
			delete(l.jobs, id)
		}
	}
}

// Poll returns the job's current snapshot.
func (l *LocalJobs) Poll(_ context.Context, jobID string) (Job, error) {
	j, err := l.lookup(jobID)
	if err != nil {
		return Job{}, err
	}
	return j.view(), nil
}

// AwaitTerminal blocks until the job finishes or ctx is cancelled.
func (l *LocalJobs) AwaitTerminal(ctx context.Context, jobID string) (Job, error) {
	j, err := l.lookup(jobID)
	if err != nil {
		return Job{}, err
	}
	select {
	case <-j.done:
		return j.view(), nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Cancel stops a running job. Cancelling a finished job is a no-op.
func (l *LocalJobs) Cancel(_ context.Context, jobID string) error {
	j, err := l.lookup(jobID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()
	j.cancel()
	return nil
}

// Close cancels every job and waits for their goroutines to exit.
func (l *LocalJobs) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		close(l.closed)
		for _, j := range l.jobs {
			j.cancel()
		}
	})
	l.wg.Wait()
	return nil
}
