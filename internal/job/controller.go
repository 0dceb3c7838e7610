// Package job owns the lifecycle of a translation run.
//
// A Controller accepts a file selection, submits a job and follows its
// response stream until it ends:
//
//	Idle -> Submitting -> Streaming -> Completed | Incomplete | Failed -> Idle
//
// Only one run exists at a time, Run refuses to start unless the Controller
// is Idle. Records are decoded, interpreted and applied strictly one after
// another on the caller's goroutine.
//
// Invariants:
//   - the submit control is disabled while a run is active and enabled again
//     on every exit path, including panics.
//   - Completed requires that the stream ended cleanly and a download url
//     arrived during the run.
//   - every failure produces a log entry and a status update.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/doctrans/doctrans/internal/log"
	"github.com/doctrans/doctrans/internal/model"
	"github.com/doctrans/doctrans/internal/selection"
	"github.com/doctrans/doctrans/internal/stream"
	"github.com/doctrans/doctrans/internal/syncer"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseStreaming  Phase = "streaming"
	PhaseCompleted  Phase = "completed"
	PhaseIncomplete Phase = "incomplete"
	PhaseFailed     Phase = "failed"
)

// Submitter sends a job to the server and returns the progress stream.
type Submitter interface {
	Translate(ctx context.Context, req model.JobRequest) (io.ReadCloser, error)
}

// CacheClearer drops the server side translation cache.
type CacheClearer interface {
	ClearCache(ctx context.Context) (string, error)
}

// Recorder persists run outcomes. Its errors never affect a run.
type Recorder interface {
	RunStarted(ctx context.Context, runID, file string) error
	RunCompleted(ctx context.Context, runID, downloadURL string) error
	RunIncomplete(ctx context.Context, runID, reason string) error
	RunFailed(ctx context.Context, runID, reason string) error
}

// Outcome describes a finished run.
type Outcome struct {
	RunID string
	Phase Phase
	State model.JobState
	Log   []model.LogEntry
}

type Controller struct {
	mx        sync.Mutex
	phase     Phase
	selection model.FileSelection

	validator selection.Validator
	submitter Submitter
	view      syncer.View
	recorder  Recorder
	log       *syncer.LogBook
	chunkSize int
	newID     func() string
}

func New(submitter Submitter, validator selection.Validator, view syncer.View) *Controller {
	if view == nil {
		view = syncer.NopView{}
	}
	return &Controller{
		phase:     PhaseIdle,
		validator: validator,
		submitter: submitter,
		view:      view,
		log:       syncer.NewLogBook(),
		chunkSize: stream.DefaultChunkSize,
		newID:     uuid.NewString,
	}
}

// WithRecorder makes the Controller persist every run.
func (c *Controller) WithRecorder(r Recorder) *Controller {
	c.recorder = r
	return c
}

// WithChunkSize sets the read size of the response stream.
func (c *Controller) WithChunkSize(n int) *Controller {
	c.chunkSize = n
	return c
}

// WithLogBook replaces the run log, used by tests to control time.
func (c *Controller) WithLogBook(l *syncer.LogBook) *Controller {
	c.log = l
	return c
}

func (c *Controller) Phase() Phase {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.phase = p
}

// Selection returns the current file selection.
func (c *Controller) Selection() (model.FileSelection, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.selection, !c.selection.IsZero()
}

// Select replaces the file selection. A rejected name clears the previous
// selection and keeps submission disabled.
func (c *Controller) Select(ctx context.Context, name string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.phase != PhaseIdle {
		return model.ErrJobInProgress
	}

	sel, err := c.validator.Validate(ctx, name)
	if err != nil {
		c.selection = model.FileSelection{}
		c.view.AppendLog(c.log.Append(err.Error()))
		c.view.SetStatus(model.StatusRejected)
		c.view.SetSubmitEnabled(false)
		return err
	}
	c.selection = sel
	c.view.SetSubmitEnabled(true)
	return nil
}

// begin moves an Idle controller with a valid selection to Submitting.
func (c *Controller) begin() (model.FileSelection, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.phase != PhaseIdle {
		return model.FileSelection{}, model.ErrJobInProgress
	}
	if c.selection.IsZero() {
		return model.FileSelection{}, model.ErrNoSelection
	}
	c.phase = PhaseSubmitting
	return c.selection, nil
}

// Run submits the selected document and follows the run to its end.
// It returns ErrIncompleteRun when the stream ended without a download url
// and an error wrapping ErrSubmissionFailed or ErrStreamTransport for a
// failed run. The Controller is Idle again when Run returns.
func (c *Controller) Run(ctx context.Context, opts model.JobOptions, content []byte) (Outcome, error) {
	sel, err := c.begin()
	if err != nil {
		return Outcome{Phase: c.Phase()}, err
	}

	r := &run{
		c:     c,
		id:    c.newID(),
		file:  sel.Name(),
		state: &model.JobState{Running: true},
	}
	r.state.RunID = r.id
	ctx = log.ContextAttrs(ctx,
		slog.String("run_id", r.id),
		slog.String("file", r.file),
	)

	c.log.Reset()
	r.sync = syncer.New(r.state, c.log, c.view)

	defer func() {
		r.state.Running = false
		c.view.SetIndeterminate(false)
		c.view.SetSubmitEnabled(true)
		c.setPhase(PhaseIdle)
	}()

	c.view.SetSubmitEnabled(false)
	c.view.SetIndeterminate(true)
	c.view.SetProgress(0)
	c.view.SetStatus(model.StatusUploading)
	slog.InfoContext(ctx, "submitting translation job",
		"target_lang", opts.TargetLang,
		"engine", opts.Engine,
		"generate_summary", opts.GenerateSummary)
	r.record(ctx, func(rec Recorder) error { return rec.RunStarted(ctx, r.id, r.file) })

	req := model.JobRequest{
		JobOptions: opts,
		FileName:   sel.Name(),
		Content:    content,
	}
	body, err := c.submitter.Translate(ctx, req)
	if err != nil {
		if !errors.Is(err, model.ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", model.ErrSubmissionFailed, err)
		}
		return r.fail(ctx, "", err)
	}
	defer func() {
		_ = body.Close()
	}()

	c.setPhase(PhaseStreaming)
	c.view.SetIndeterminate(false)
	var lines int
	for line, err := range stream.Lines(body, c.chunkSize) {
		if err != nil {
			return r.fail(ctx, "Connection lost: ", fmt.Errorf("%w: %w", model.ErrStreamTransport, err))
		}
		lines++
		r.sync.Apply(ctx, stream.Interpret(line))
	}
	slog.DebugContext(ctx, "stream ended", "lines", lines)

	if r.state.Completed() {
		return r.complete(ctx), nil
	}
	return r.incomplete(ctx)
}

// ClearCache asks the server to clear its cache and resets the counters
// shown. It is refused while a run is active.
func (c *Controller) ClearCache(ctx context.Context, cc CacheClearer) error {
	if c.Phase() != PhaseIdle {
		return model.ErrJobInProgress
	}
	msg, err := cc.ClearCache(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "clearing cache failed", "error", err)
		c.view.AppendLog(c.log.Append(err.Error()))
		c.view.SetStatus(model.StatusCacheError)
		return err
	}
	c.view.SetCounters(0, 0)
	c.view.AppendLog(c.log.Append(msg))
	return nil
}

// run is the bookkeeping of one Run call.
type run struct {
	c     *Controller
	id    string
	file  string
	state *model.JobState
	sync  *syncer.Synchronizer
}

func (r *run) outcome(p Phase) Outcome {
	r.c.setPhase(p)
	r.state.Running = false
	return Outcome{
		RunID: r.id,
		Phase: p,
		State: *r.state,
		Log:   r.c.log.Entries(),
	}
}

func (r *run) complete(ctx context.Context) Outcome {
	r.state.Status = model.StatusCompleted
	r.state.Progress = 100
	r.c.view.SetStatus(r.state.Status)
	r.c.view.SetProgress(r.state.Progress)
	r.c.view.ShowDownload(r.state.DownloadURL)
	slog.InfoContext(ctx, "run completed", "download_url", r.state.DownloadURL)
	r.record(ctx, func(rec Recorder) error { return rec.RunCompleted(ctx, r.id, r.state.DownloadURL) })
	return r.outcome(PhaseCompleted)
}

func (r *run) incomplete(ctx context.Context) (Outcome, error) {
	// an Error status from the server says more than ours
	if r.state.Status != model.StatusError {
		r.state.Status = model.StatusIncomplete
		r.c.view.SetStatus(r.state.Status)
	}
	r.sync.Log("Stream ended without a download URL")
	slog.WarnContext(ctx, "run ended without a download url", "status", r.state.Status)
	r.record(ctx, func(rec Recorder) error { return rec.RunIncomplete(ctx, r.id, r.state.Status) })
	return r.outcome(PhaseIncomplete), model.ErrIncompleteRun
}

func (r *run) fail(ctx context.Context, prefix string, err error) (Outcome, error) {
	r.state.Status = model.StatusError
	r.c.view.SetStatus(r.state.Status)
	r.sync.Log(prefix + err.Error())
	slog.ErrorContext(ctx, "run failed", "error", err)
	r.record(ctx, func(rec Recorder) error { return rec.RunFailed(ctx, r.id, err.Error()) })
	return r.outcome(PhaseFailed), err
}

func (r *run) record(ctx context.Context, fn func(Recorder) error) {
	if r.c.recorder == nil {
		return
	}
	if err := fn(r.c.recorder); err != nil {
		slog.WarnContext(ctx, "recording run history failed", "error", err)
	}
}
