// Package syncer applies interpreted records to the state of a run.
//
// A Synchronizer is created per run and is the only writer of the run's
// JobState and LogBook. Records are applied one at a time, in the order the
// decoder completed their lines. Within a record the fields are applied in a
// fixed order: progress, status, counters, message, summary, download url.
// Every change is mirrored to the View right after the state is updated.
package syncer

import (
	"context"
	"log/slog"

	"github.com/doctrans/doctrans/internal/model"
)

type Synchronizer struct {
	state *model.JobState
	log   *LogBook
	view  View
}

func New(state *model.JobState, log *LogBook, view View) *Synchronizer {
	if view == nil {
		view = NopView{}
	}
	return &Synchronizer{
		state: state,
		log:   log,
		view:  view,
	}
}

// Apply merges one record into the run state.
func (s *Synchronizer) Apply(ctx context.Context, rec model.Record) {
	slog.DebugContext(ctx, "applying record", "kinds", rec.Kinds())
	if rec.Malformed {
		slog.DebugContext(ctx, "unparseable stream line", "line", rec.Raw)
		s.view.AppendLog(s.log.AppendMalformed("Unparseable update: " + rec.Raw))
		return
	}

	// out of range values are passed as they come
	if rec.Progress != nil {
		s.state.Progress = *rec.Progress
		s.view.SetProgress(s.state.Progress)
	}
	if rec.Status != nil {
		s.state.Status = *rec.Status
		s.view.SetStatus(s.state.Status)
	}
	if rec.APICalls != nil || rec.Cached != nil {
		if rec.APICalls != nil {
			s.state.APICalls = *rec.APICalls
		}
		if rec.Cached != nil {
			s.state.Cached = *rec.Cached
		}
		s.view.SetCounters(s.state.APICalls, s.state.Cached)
	}
	if rec.Message != nil {
		s.Log(*rec.Message)
	}
	if rec.Summary != nil {
		s.state.Summary = *rec.Summary
		s.state.HasSummary = true
		s.view.SetSummary(s.state.Summary)
	}
	if rec.DownloadURL != nil {
		if s.state.SetDownloadURL(*rec.DownloadURL) {
			slog.InfoContext(ctx, "run completed by server", "download_url", s.state.DownloadURL)
		} else {
			slog.WarnContext(ctx, "ignoring additional download url",
				"download_url", *rec.DownloadURL,
				"kept", s.state.DownloadURL)
			s.Log("Ignoring additional download URL " + *rec.DownloadURL)
		}
	}
}

// Log appends a run log entry and shows it.
func (s *Synchronizer) Log(text string) model.LogEntry {
	e := s.log.Append(text)
	s.view.AppendLog(e)
	return e
}

// State returns the state the Synchronizer writes to.
func (s *Synchronizer) State() *model.JobState {
	return s.state
}
