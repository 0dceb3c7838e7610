// Package syncertest provides a View recording every setter call, for tests.
package syncertest

import (
	"fmt"
	"sync"

	"github.com/doctrans/doctrans/internal/model"
)

// Call is one recorded setter invocation, e.g. "progress 10".
type Call string

// View records the calls it receives. It is safe for concurrent use.
type View struct {
	mx    sync.Mutex
	calls []Call

	Progress      int
	Indeterminate bool
	Status        string
	APICalls      int
	Cached        int
	Log           []model.LogEntry
	Summary       string
	Download      string
	SubmitEnabled bool
}

func New() *View {
	return &View{SubmitEnabled: true}
}

func (v *View) record(format string, args ...any) {
	v.calls = append(v.calls, Call(fmt.Sprintf(format, args...)))
}

func (v *View) SetProgress(percent int) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.Progress = percent
	v.record("progress %d", percent)
}

func (v *View) SetIndeterminate(on bool) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.Indeterminate = on
	v.record("indeterminate %t", on)
}

func (v *View) SetStatus(text string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.Status = text
	v.record("status %s", text)
}

func (v *View) SetCounters(apiCalls, cached int) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.APICalls, v.Cached = apiCalls, cached
	v.record("counters %d %d", apiCalls, cached)
}

func (v *View) AppendLog(entry model.LogEntry) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.Log = append(v.Log, entry)
	v.record("log %s", entry.Text)
}

func (v *View) SetSummary(text string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.Summary = text
	v.record("summary %s", text)
}

func (v *View) ShowDownload(url string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.Download = url
	v.record("download %s", url)
}

func (v *View) SetSubmitEnabled(enabled bool) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.SubmitEnabled = enabled
	v.record("submit %t", enabled)
}

// Calls returns a copy of the recorded calls.
func (v *View) Calls() []Call {
	v.mx.Lock()
	defer v.mx.Unlock()
	return append([]Call(nil), v.calls...)
}

// LogTexts returns the text of every appended log entry.
func (v *View) LogTexts() []string {
	v.mx.Lock()
	defer v.mx.Unlock()
	ret := make([]string, 0, len(v.Log))
	for _, e := range v.Log {
		ret = append(ret, e.Text)
	}
	return ret
}
