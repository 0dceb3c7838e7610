package syncer

import "github.com/doctrans/doctrans/internal/model"

// View is the rendering side of a run. Every state change is pushed as a
// setter call, in the order the records arrived.
type View interface {
	SetProgress(percent int)
	SetIndeterminate(on bool)
	SetStatus(text string)
	SetCounters(apiCalls, cached int)
	AppendLog(entry model.LogEntry)
	SetSummary(text string)
	ShowDownload(url string)
	SetSubmitEnabled(enabled bool)
}

// NopView discards every update.
type NopView struct{}

func (NopView) SetProgress(int)          {}
func (NopView) SetIndeterminate(bool)    {}
func (NopView) SetStatus(string)         {}
func (NopView) SetCounters(int, int)     {}
func (NopView) AppendLog(model.LogEntry) {}
func (NopView) SetSummary(string)        {}
func (NopView) ShowDownload(string)      {}
func (NopView) SetSubmitEnabled(bool)    {}
