package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/MrWong99/transcribot/internal/chat"
	"github.com/MrWong99/transcribot/internal/gate"
	"github.com/MrWong99/transcribot/internal/history"
	"github.com/MrWong99/transcribot/internal/observe"
	"github.com/MrWong99/transcribot/internal/resilience"
	"github.com/MrWong99/transcribot/internal/session"
	"github.com/MrWong99/transcribot/internal/summary"
	"github.com/MrWong99/transcribot/internal/throttle"
	"github.com/MrWong99/transcribot/internal/vocab"
	"github.com/MrWong99/transcribot/pkg/provider/embeddings"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
	"github.com/MrWong99/transcribot/pkg/storage"
)

// Defaults for [Config].
const (
	DefaultProgressThrottle = time.Second
	DefaultDownloadThrottle = 3 * time.Second

	// finalNoticeTimeout bounds the terminal status edit and error reports,
	// which are sent even after the request context is cancelled.
	finalNoticeTimeout = 10 * time.Second

	// ownerMirrorLimit caps the size of a received file forwarded to the
	// owner. Larger files are announced without the attachment.
	ownerMirrorLimit = 50 << 20
)

var (
	// ErrUnsupportedMedia is returned for documents that hold neither audio
	// nor video.
	ErrUnsupportedMedia = errors.New("bot: unsupported media type")

	// ErrJobFailed is returned when the provider reports a failed job.
	ErrJobFailed = errors.New("bot: transcription failed")
)

// Owner identifies the bot's owner, who receives mirrored activity and may
// use the owner commands.
type Owner struct {
	// Username is matched case-insensitively against message senders. A
	// leading "@" is ignored.
	Username string

	// ChatID is where mirrored activity is sent. Empty disables mirroring.
	ChatID string
}

// Config holds the collaborators and settings of a [Handler].
type Config struct {
	Platform chat.Platform       // required
	Storage  storage.Storage     // required
	Provider transcribe.Provider // required

	// ProviderName labels metrics and history records.
	ProviderName string

	// Gate serializes transcription sessions. A new gate is created when nil.
	Gate *gate.Gate

	// Summariser, History and Embedder are optional.
	Summariser summary.Summariser
	History    history.Store
	Embedder   embeddings.Provider

	// Vocabulary rewrites misheard terms in finished transcripts. Optional.
	Vocabulary *vocab.Corrector

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	Owner Owner

	// Location is the time zone of upload timestamps. Defaults to time.Local.
	Location *time.Location

	// UpdateInterval, SubmitAttempts and AwaitRetries are passed to every
	// session.
	UpdateInterval time.Duration
	SubmitAttempts int
	AwaitRetries   int

	// ProgressThrottle is the minimum gap between transcription progress
	// edits. Defaults to DefaultProgressThrottle.
	ProgressThrottle time.Duration

	// DownloadThrottle is the minimum gap between download progress edits.
	// Defaults to DefaultDownloadThrottle.
	DownloadThrottle time.Duration

	// TempDir is the parent of per-request work directories. Empty means
	// os.TempDir().
	TempDir string

	// Retry configures retries of storage uploads and history writes.
	Retry resilience.RetryConfig

	// Now replaces time.Now. Used by tests.
	Now func() time.Time
}

// Handler implements the request handler and the cancellation relay.
type Handler struct {
	platform     chat.Platform
	storage      storage.Storage
	provider     transcribe.Provider
	providerName string
	gate         *gate.Gate
	summariser   summary.Summariser
	history      history.Store
	embedder     embeddings.Provider
	vocabulary   *vocab.Corrector
	metrics      *observe.Metrics
	owner        Owner
	loc          *time.Location
	now          func() time.Time
	tempDir      string
	retry        resilience.RetryConfig

	updateInterval   time.Duration
	submitAttempts   int
	awaitRetries     int
	progressThrottle time.Duration
	downloadThrottle time.Duration

	mu     sync.Mutex
	active *activeJob
}

// activeJob is the session currently holding the gate.
type activeJob struct {
	session   *session.Session
	status    *statusMessage
	requester chat.Message
	log       *slog.Logger
}

// New validates cfg and creates a Handler.
func New(cfg Config) (*Handler, error) {
	var errs []error
	if cfg.Platform == nil {
		errs = append(errs, errors.New("platform is required"))
	}
	if cfg.Storage == nil {
		errs = append(errs, errors.New("storage is required"))
	}
	if cfg.Provider == nil {
		errs = append(errs, errors.New("transcription provider is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}

	h := &Handler{
		platform:         cfg.Platform,
		storage:          cfg.Storage,
		provider:         cfg.Provider,
		providerName:     cfg.ProviderName,
		gate:             cfg.Gate,
		summariser:       cfg.Summariser,
		history:          cfg.History,
		embedder:         cfg.Embedder,
		vocabulary:       cfg.Vocabulary,
		metrics:          cfg.Metrics,
		owner:            cfg.Owner,
		loc:              cfg.Location,
		now:              cfg.Now,
		tempDir:          cfg.TempDir,
		retry:            cfg.Retry,
		updateInterval:   cfg.UpdateInterval,
		submitAttempts:   cfg.SubmitAttempts,
		awaitRetries:     cfg.AwaitRetries,
		progressThrottle: cfg.ProgressThrottle,
		downloadThrottle: cfg.DownloadThrottle,
	}
	if h.providerName == "" {
		h.providerName = "unknown"
	}
	if h.gate == nil {
		h.gate = gate.New()
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.progressThrottle <= 0 {
		h.progressThrottle = DefaultProgressThrottle
	}
	if h.downloadThrottle <= 0 {
		h.downloadThrottle = DefaultDownloadThrottle
	}
	h.owner.Username = strings.TrimPrefix(h.owner.Username, "@")
	return h, nil
}

// Register wires the handler into d: owner commands first, then media
// messages, then cancel callbacks.
func (h *Handler) Register(d *Dispatcher) {
	d.OnMessage(h.HandleCommand)
	d.OnMessage(h.HandleMessage)
	d.OnCallback(h.HandleCancel)
}

// Active returns the session currently holding the gate, or nil.
func (h *Handler) Active() *session.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil
	}
	return h.active.session
}

func (h *Handler) setActive(a *activeJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = a
}

func (h *Handler) clearActive(a *activeJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == a {
		h.active = nil
	}
}

func (h *Handler) current() *activeJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Handler) isOwner(u chat.User) bool {
	return h.owner.Username != "" && strings.EqualFold(strings.TrimPrefix(u.Username, "@"), h.owner.Username)
}

// mirrors reports whether activity of u is forwarded to the owner.
func (h *Handler) mirrors(u chat.User) bool {
	return h.owner.ChatID != "" && !h.isOwner(u)
}

func senderName(u chat.User) string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	default:
		return "Unknown sender"
	}
}

// HandleMessage runs one transcription request for a media message. Messages
// without media get the help text. Errors and panics are reported to the
// requester and the owner; they never escape.
func (h *Handler) HandleMessage(ctx context.Context, msg chat.Message) Result {
	if msg.Media == nil {
		h.reply(ctx, msg, HelpText)
		return Handled
	}

	ctx, span := observe.StartSpan(ctx, "bot.request")
	log := observe.Logger(ctx).With(
		"request_id", uuid.NewString(),
		"platform", h.platform.Name(),
		"chat_id", msg.Ref.ChatID,
		"sender", senderName(msg.Sender),
	)
	r := &request{h: h, msg: msg, log: log}

	trace, err := r.safeRun(ctx)
	observe.EndSpan(span, err)
	if err != nil {
		r.fail(ctx, err, trace)
		return Terminated
	}
	return Handled
}

// request is the state of one HandleMessage call.
type request struct {
	h   *Handler
	msg chat.Message
	log *slog.Logger

	status *statusMessage
	prefix string
}

func (r *request) safeRun(ctx context.Context) (trace string, err error) {
	defer func() {
		if p := recover(); p != nil {
			trace = string(debug.Stack())
			err = fmt.Errorf("bot: panic: %v", p)
		}
	}()
	return "", r.run(ctx)
}

func (r *request) run(ctx context.Context) error {
	h := r.h
	media := *r.msg.Media

	label := "voice message"
	if media.FileName != "" {
		label = "'" + media.FileName + "'"
	}
	size := "unknown size"
	if media.Size > 0 {
		size = HumanSize(media.Size)
	}

	r.prefix = fmt.Sprintf("Downloading %s, (%s)...", label, size)
	ref, err := h.platform.Send(ctx, r.msg.Ref.ChatID, chat.OutgoingMessage{
		Text:    r.prefix,
		ReplyTo: r.msg.Ref,
		Silent:  true,
	})
	if err != nil {
		return fmt.Errorf("bot: send status message: %w", err)
	}
	r.status = newStatusMessage(h.platform, ref, r.prefix, h.metrics, r.log)

	dir, err := os.MkdirTemp(h.tempDir, "transcribot-*")
	if err != nil {
		return fmt.Errorf("bot: create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path, err := r.download(ctx, media, dir)
	if err != nil {
		return err
	}
	if media.Size <= 0 {
		if fi, err := os.Stat(path); err == nil {
			size = HumanSize(fi.Size())
		}
	}
	length := "unknown length"
	if media.Duration > 0 {
		length = FormatHHMMSS(media.Duration)
	}

	r.prefix = fmt.Sprintf("Downloaded %s (%s, %s).", label, length, size)
	r.status.Update(ctx, r.prefix+textPreparing, nil)
	r.log.Info("bot: received file", "file", label, "length", length, "size", size)
	r.mirrorFile(ctx, fmt.Sprintf("Received file from '%s': %s", senderName(r.msg.Sender), r.prefix), path)

	fileURL, err := r.upload(ctx, path)
	if err != nil {
		return err
	}

	if h.gate.Busy() {
		r.prefix += textQueued
		r.status.Update(ctx, r.prefix, nil)
	}

	res, err := r.transcribe(ctx, path, fileURL)
	if err != nil {
		return err
	}
	return r.deliver(ctx, path, res)
}

// download fetches the media into dir with throttled progress edits.
func (r *request) download(ctx context.Context, media chat.Media, dir string) (string, error) {
	thr := throttle.New(r.h.downloadThrottle)
	path, err := r.h.platform.Download(ctx, media, dir, func(received, total int64) {
		_ = thr.Do(func() error {
			r.status.Update(ctx, progressLine(r.prefix, received, total), nil)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("bot: download failed: %w", err)
	}
	if media.Kind == chat.MediaDocument {
		if err := checkMedia(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// checkMedia sniffs a downloaded document and rejects anything that is not
// audio or video.
func checkMedia(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("bot: detect media type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || strings.HasPrefix(s, "video/") || m.Is("application/ogg") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedMedia, mt.String())
}

// upload stores the file under a time-stamped name and returns its URL.
func (r *request) upload(ctx context.Context, path string) (string, error) {
	h := r.h
	base := r.status.Text()
	r.status.Update(ctx, base+textUploading, nil)

	dest := storage.ObjectName(path, h.now().In(h.loc))
	cfg := h.retry
	cfg.Name = "storage upload"
	fileURL, err := resilience.RetryValue(ctx, cfg, func(ctx context.Context) (string, error) {
		return h.storage.Upload(ctx, path, dest)
	})
	if err != nil {
		return "", fmt.Errorf("bot: upload failed: %w", err)
	}
	r.status.Update(ctx, base+textUploaded, nil)
	r.log.Info("bot: media uploaded", "object", dest)
	return fileURL, nil
}

// transcribe runs one session while holding the gate.
func (r *request) transcribe(ctx context.Context, path, fileURL string) (session.Result, error) {
	h := r.h
	var res session.Result

	waitStart := time.Now()
	h.metrics.QueueWaiting.Add(ctx, 1)
	queued := true
	err := h.gate.Do(ctx, func(ctx context.Context) error {
		h.metrics.QueueWaiting.Add(ctx, -1)
		queued = false
		h.metrics.RecordQueueWait(ctx, time.Since(waitStart))
		h.metrics.ActiveSessions.Add(ctx, 1)
		defer h.metrics.ActiveSessions.Add(ctx, -1)

		r.prefix += textTranscribing
		r.status.Update(ctx, r.prefix, nil)

		var sess *session.Session
		running := func() bool { return !sess.CancelRequested() }
		thr := throttle.New(h.progressThrottle)
		sess = session.New(session.Config{
			Provider: h.provider,
			Progress: func(ctx context.Context, text string) {
				_ = thr.Do(func() error {
					r.status.UpdateIf(ctx, running, r.prefix+"\n"+text, cancelButtons(sess.JobID()))
					return nil
				})
			},
			UpdateInterval: h.updateInterval,
			SubmitAttempts: h.submitAttempts,
			AwaitRetries:   h.awaitRetries,
		})
		defer sess.Close()

		jobID, err := sess.Submit(ctx, fileURL)
		if err != nil {
			h.metrics.RecordProviderError(ctx, h.providerName, "submit")
			return err
		}
		log := r.log.With("job_id", jobID)
		act := &activeJob{session: sess, status: r.status, requester: r.msg, log: log}
		h.setActive(act)
		defer h.clearActive(act)

		r.status.UpdateIf(ctx, running, r.prefix, cancelButtons(jobID))
		r.recordCreate(ctx, jobID, path, fileURL)

		res, err = sess.Await(ctx)
		if err != nil {
			h.metrics.RecordProviderError(ctx, h.providerName, "await")
			r.recordFinish(ctx, jobID, session.Result{Status: transcribe.StatusFailed, Error: err.Error()})
			return err
		}
		log.Info("bot: job finished", "status", res.Status, "elapsed", res.Elapsed)
		return nil
	})
	if queued {
		h.metrics.QueueWaiting.Add(ctx, -1)
	}
	if err != nil {
		return session.Result{}, err
	}
	h.metrics.RecordJob(ctx, h.providerName, string(res.Status), res.Elapsed)
	return res, nil
}

func cancelButtons(jobID string) []chat.Button {
	return []chat.Button{{Text: cancelButtonText, Data: jobID}}
}

// deliver sends the terminal status edit and, on success, the transcript.
func (r *request) deliver(ctx context.Context, path string, res session.Result) error {
	h := r.h
	sender := senderName(r.msg.Sender)

	switch res.Status {
	case transcribe.StatusCanceled:
		r.finish(ctx, r.prefix+" cancelled.")
		r.recordFinish(ctx, res.JobID, res)
		r.log.Info("bot: transcription cancelled", "job_id", res.JobID)
		r.notifyOwner(ctx, sender+" cancelled transcription.")
		return nil

	case transcribe.StatusSucceeded:
		if corrected, fixes := h.vocabulary.Correct(res.Transcript); len(fixes) > 0 {
			res.Transcript = corrected
			r.log.Debug("bot: vocabulary corrections applied", "job_id", res.JobID, "count", len(fixes))
		}
		doneText := fmt.Sprintf("%s done in %s.", r.prefix, FormatHHMMSS(res.Elapsed))
		r.finish(ctx, doneText)
		r.recordFinish(ctx, res.JobID, res)

		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		transcript := chat.Document{Name: stem + ".txt", Data: []byte(res.Transcript), ReplyTo: r.msg.Ref}
		if _, err := h.platform.SendDocument(ctx, r.msg.Ref.ChatID, transcript); err != nil {
			return fmt.Errorf("bot: send transcript: %w", err)
		}
		r.summarise(ctx, stem, res.Transcript)

		r.log.Info("bot: transcription completed", "job_id", res.JobID)
		if h.mirrors(r.msg.Sender) {
			mirror := transcript
			mirror.ReplyTo = chat.MessageRef{}
			mirror.Caption = fmt.Sprintf("Completed transcription for %s: %s", sender, doneText)
			mirror.Silent = true
			if _, err := h.platform.SendDocument(ctx, h.owner.ChatID, mirror); err != nil {
				r.log.Warn("bot: mirror transcript to owner failed", "err", err)
			}
		}
		return nil

	default:
		r.recordFinish(ctx, res.JobID, res)
		reason := res.Error
		if reason == "" {
			reason = "no details reported"
		}
		return fmt.Errorf("%w: job %s: %s", ErrJobFailed, res.JobID, reason)
	}
}

// summarise replies with meeting minutes. Failures are logged only.
func (r *request) summarise(ctx context.Context, stem, transcript string) {
	h := r.h
	if h.summariser == nil || strings.TrimSpace(transcript) == "" {
		return
	}
	start := time.Now()
	minutes, err := h.summariser.Minutes(ctx, transcript)
	h.metrics.SummaryDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordProviderError(ctx, "summary", "minutes")
		r.log.Warn("bot: summary failed", "err", err)
		return
	}
	doc := chat.Document{Name: stem + "_summary.txt", Data: []byte(minutes), ReplyTo: r.msg.Ref}
	if _, err := h.platform.SendDocument(ctx, r.msg.Ref.ChatID, doc); err != nil {
		r.log.Warn("bot: send summary failed", "err", err)
	}
}

// finish makes the one terminal edit of the status message. It runs on a
// context detached from ctx's cancellation so that the outcome still reaches
// the chat while the bot shuts down.
func (r *request) finish(ctx context.Context, text string) {
	if r.status == nil {
		return
	}
	ctx, cancel := detach(ctx)
	defer cancel()
	r.status.Finish(ctx, text)
}

// detach returns a context that keeps ctx's values but not its cancellation,
// bounded by finalNoticeTimeout.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalNoticeTimeout)
}

// fail reports err to the requester and the owner. trace is set for panics.
func (r *request) fail(ctx context.Context, err error, trace string) {
	if trace != "" {
		r.log.Error("bot: request panicked", "err", err, "stack", trace)
	} else {
		r.log.Error("bot: request failed", "err", err)
	}
	r.finish(ctx, r.prefix+" failed.")

	ctx, cancel := detach(ctx)
	defer cancel()
	r.h.reportError(ctx, r.msg, err, trace)
}

// reportError sends the requester a sanitized error and the owner the full
// details.
func (h *Handler) reportError(ctx context.Context, msg chat.Message, err error, trace string) {
	if _, sendErr := h.platform.Send(ctx, msg.Ref.ChatID, chat.OutgoingMessage{
		Text:    "Encountered error:",
		Code:    sanitize(err.Error()),
		ReplyTo: msg.Ref,
	}); sendErr != nil {
		slog.Error("bot: report error to requester", "chat_id", msg.Ref.ChatID, "err", sendErr)
	}

	if !h.mirrors(msg.Sender) {
		return
	}
	details := err.Error()
	if trace != "" {
		details += "\n\n" + trace
	}
	if _, sendErr := h.platform.Send(ctx, h.owner.ChatID, chat.OutgoingMessage{
		Text:   fmt.Sprintf("Received error from %s:", senderName(msg.Sender)),
		Code:   truncateRunes(details, maxErrorRunes),
		Silent: true,
	}); sendErr != nil {
		slog.Error("bot: report error to owner", "err", sendErr)
	}
}

// notifyOwner sends text to the owner unless the requester is the owner.
func (r *request) notifyOwner(ctx context.Context, text string) {
	if !r.h.mirrors(r.msg.Sender) {
		return
	}
	if _, err := r.h.platform.Send(ctx, r.h.owner.ChatID, chat.OutgoingMessage{Text: text, Silent: true}); err != nil {
		r.log.Warn("bot: notify owner failed", "err", err)
	}
}

// mirrorFile forwards the received file to the owner with caption.
func (r *request) mirrorFile(ctx context.Context, caption, path string) {
	h := r.h
	if !h.mirrors(r.msg.Sender) {
		return
	}
	fi, err := os.Stat(path)
	if err != nil || fi.Size() > ownerMirrorLimit {
		r.notifyOwner(ctx, caption)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.log.Warn("bot: read file for owner mirror", "err", err)
		r.notifyOwner(ctx, caption)
		return
	}
	doc := chat.Document{Name: filepath.Base(path), Data: data, Caption: caption, Silent: true}
	if _, err := h.platform.SendDocument(ctx, h.owner.ChatID, doc); err != nil {
		r.log.Warn("bot: mirror file to owner failed", "err", err)
	}
}

func (r *request) recordCreate(ctx context.Context, jobID, path, fileURL string) {
	h := r.h
	if h.history == nil {
		return
	}
	rec := history.Record{
		JobID:     jobID,
		Provider:  h.providerName,
		Platform:  h.platform.Name(),
		ChatID:    r.msg.Ref.ChatID,
		Sender:    senderName(r.msg.Sender),
		FileName:  filepath.Base(path),
		FileURL:   fileURL,
		Status:    transcribe.StatusStarting,
		CreatedAt: h.now(),
	}
	cfg := h.retry
	cfg.Name = "history create"
	if err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
		return h.history.Create(ctx, rec)
	}); err != nil {
		r.log.Warn("bot: history create failed", "job_id", jobID, "err", err)
	}
}

func (r *request) recordFinish(ctx context.Context, jobID string, res session.Result) {
	h := r.h
	if h.history == nil || jobID == "" {
		return
	}
	out := history.Outcome{
		Status:     res.Status,
		Transcript: res.Transcript,
		Error:      res.Error,
		FinishedAt: h.now(),
	}
	if h.embedder != nil && res.Status == transcribe.StatusSucceeded && strings.TrimSpace(res.Transcript) != "" {
		vec, err := embeddings.Document(ctx, h.embedder, res.Transcript, 0)
		if err != nil {
			h.metrics.RecordProviderError(ctx, h.embedder.ModelID(), "embed")
			r.log.Warn("bot: embed transcript failed", "job_id", jobID, "err", err)
		} else {
			out.Embedding = vec
		}
	}
	cfg := h.retry
	cfg.Name = "history finish"
	cfg.Retryable = func(err error) bool {
		return !errors.Is(err, history.ErrNotFound) && !errors.Is(err, context.Canceled)
	}
	if err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
		return h.history.Finish(ctx, jobID, out)
	}); err != nil {
		r.log.Warn("bot: history finish failed", "job_id", jobID, "err", err)
	}
}

func (h *Handler) reply(ctx context.Context, msg chat.Message, text string) {
	if _, err := h.platform.Send(ctx, msg.Ref.ChatID, chat.OutgoingMessage{Text: text, ReplyTo: msg.Ref}); err != nil {
		slog.Warn("bot: reply failed", "chat_id", msg.Ref.ChatID, "err", err)
	}
}
