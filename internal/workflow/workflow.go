package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/DaewiLF/MinerIA/internal/api"
)

var (
	// ErrSubmissionFailed wraps every failed upload.
	ErrSubmissionFailed = errors.New("submission failed")

	ErrNoFile       = errors.New("no file selected")
	ErrBusy         = errors.New("a submission is in progress")
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrClosed       = errors.New("workflow closed")
	// ErrDiscarded is returned by a Submit whose result arrived after the
	// workflow was reset.
	ErrDiscarded = errors.New("submission result discarded")
)

// State is the position of a Workflow in its lifecycle.
type State int

const (
	Empty State = iota
	Previewing
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Previewing:
		return "previewing"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Uploader sends one file with its metadata. *api.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, content io.Reader, meta api.Metadata) (api.AnalysisDetail, error)
}

// Snapshot is a point-in-time copy of a Workflow.
type Snapshot struct {
	State   State
	File    *File
	Preview string
	Result  *api.AnalysisDetail
	Err     error
}

// Workflow drives a single upload from file selection to a server-confirmed
// analysis. It holds at most one pending file and at most one result.
type Workflow struct {
	uploader Uploader
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	file    *File
	fileGen uint64
	preview string
	result  *api.AnalysisDetail
	lastErr error
	fence   string
	closed  bool
}

// New creates an empty Workflow. A nil logger uses slog.Default().
func New(uploader Uploader, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Workflow{
		uploader: uploader,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SelectFile replaces the pending file and moves to Previewing. The preview
// is derived in the background; the returned channel closes once that is
// done, whether or not a preview was produced.
func (w *Workflow) SelectFile(f File) (<-chan struct{}, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.state == Submitting {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	w.fileGen++
	gen := w.fileGen
	w.file = &f
	w.preview = ""
	w.lastErr = nil
	w.state = Previewing
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		uri, err := dataURI(f)
		if err != nil {
			w.logger.Debug("no preview", "file", f.Name, "error", err)
			return
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed || w.fileGen != gen {
			return
		}
		w.preview = uri
	}()
	return done, nil
}

// Submit uploads the pending file with meta and blocks until the backend
// answers or ctx is cancelled. It is allowed from Previewing and from Failed
// (a retry with the same file).
func (w *Workflow) Submit(ctx context.Context, meta api.Metadata) (api.AnalysisDetail, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return api.AnalysisDetail{}, ErrClosed
	}
	switch w.state {
	case Submitting:
		w.mu.Unlock()
		return api.AnalysisDetail{}, ErrBusy
	case Previewing, Failed:
	case Empty:
		w.mu.Unlock()
		return api.AnalysisDetail{}, ErrNoFile
	default:
		state := w.state
		w.mu.Unlock()
		return api.AnalysisDetail{}, fmt.Errorf("%w: submit from %s", ErrInvalidState, state)
	}
	if w.file == nil {
		w.mu.Unlock()
		return api.AnalysisDetail{}, ErrNoFile
	}

	f := *w.file
	fence := uuid.NewString()
	w.fence = fence
	w.result = nil
	w.lastErr = nil
	w.state = Submitting
	w.mu.Unlock()

	w.logger.Info("submitting analysis", "file", f.Name, "type", f.ContentType, "size", f.Size, "submission", fence)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	detail, err := w.upload(reqCtx, f, meta)
	return w.finish(fence, f, detail, err)
}

func (w *Workflow) upload(ctx context.Context, f File, meta api.Metadata) (api.AnalysisDetail, error) {
	rc, err := f.Open()
	if err != nil {
		return api.AnalysisDetail{}, err
	}
	defer rc.Close()
	return w.uploader.Upload(ctx, f.Name, f.ContentType, rc, meta)
}

func (w *Workflow) finish(fence string, f File, detail api.AnalysisDetail, err error) (api.AnalysisDetail, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return api.AnalysisDetail{}, ErrClosed
	}
	if w.fence != fence {
		w.logger.Debug("dropping stale submission", "submission", fence)
		return api.AnalysisDetail{}, ErrDiscarded
	}

	if err != nil {
		w.state = Failed
		w.lastErr = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		w.logger.Warn("analysis failed", "file", f.Name, "error", err)
		return api.AnalysisDetail{}, w.lastErr
	}

	w.state = Succeeded
	w.result = &detail
	w.logger.Info("analysis complete", "file", f.Name, "id", detail.ID, "risk", detail.RiskLevel)
	return detail, nil
}

// Reset returns to Empty, dropping the pending file and any result. A
// submission still in flight completes with ErrDiscarded.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Empty
	w.file = nil
	w.fileGen++
	w.preview = ""
	w.result = nil
	w.lastErr = nil
	w.fence = ""
}

// Close cancels any in-flight submission. No state changes are applied
// afterwards. Close is idempotent.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancel()
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns a copy of the workflow's observable state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:   w.state,
		Preview: w.preview,
		Err:     w.lastErr,
	}
	if w.file != nil {
		f := *w.file
		s.File = &f
	}
	if w.result != nil {
		r := *w.result
		s.Result = &r
	}
	return s
}
