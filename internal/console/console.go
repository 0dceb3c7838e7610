// Package console renders a translation run as lines on a terminal.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/doctrans/doctrans/internal/model"
)

const barWidth = 30

var (
	accent  = lipgloss.Color("81")
	muted   = lipgloss.Color("245")
	success = lipgloss.Color("42")
	failure = lipgloss.Color("196")
)

type styles struct {
	status  lipgloss.Style
	err     lipgloss.Style
	done    lipgloss.Style
	dim     lipgloss.Style
	summary lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		status: r.NewStyle().Foreground(accent).Bold(true),
		err:    r.NewStyle().Foreground(failure).Bold(true),
		done:   r.NewStyle().Foreground(success).Bold(true),
		dim:    r.NewStyle().Foreground(muted),
		summary: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
	}
}

// View prints every change of a run to w. Consecutive identical log
// messages are printed once followed by a repeat count.
type View struct {
	mx    sync.Mutex
	w     io.Writer
	st    styles
	bar   progress.Model
	spin  spinner.Spinner
	frame int

	progress      int
	indeterminate bool
	apiCalls      int
	cached        int
	submit        bool

	last    string
	hasLast bool
	repeats int
}

func New(w io.Writer) *View {
	r := lipgloss.NewRenderer(w)
	return &View{
		w:  w,
		st: newStyles(r),
		bar: progress.New(
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
			progress.WithFillCharacters('#', '-'),
			progress.WithSolidFill(string(accent)),
			progress.WithColorProfile(r.ColorProfile()),
		),
		spin:     spinner.Line,
		progress: -1,
		submit:   true,
	}
}

func (v *View) println(s string) {
	_, _ = io.WriteString(v.w, s+"\n")
}

func (v *View) SetProgress(percent int) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if percent == v.progress {
		return
	}
	v.progress = percent
	// the bar clamps its fill, the printed number stays as received
	v.println("[" + v.bar.ViewAs(float64(percent)/100) + "]" + fmt.Sprintf(" %3d%%", percent))
}

func (v *View) SetIndeterminate(on bool) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if on && !v.indeterminate {
		f := v.spin.Frames[v.frame%len(v.spin.Frames)]
		v.frame++
		v.println(v.st.dim.Render(f + " working..."))
	}
	v.indeterminate = on
}

func (v *View) SetStatus(text string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.flushRepeats()
	style := v.st.status
	switch text {
	case model.StatusError:
		style = v.st.err
	case model.StatusCompleted:
		style = v.st.done
	}
	v.println("status: " + style.Render(text))
}

func (v *View) SetCounters(apiCalls, cached int) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.apiCalls, v.cached = apiCalls, cached
	v.println(v.st.dim.Render(fmt.Sprintf("api calls: %d, cached: %d", apiCalls, cached)))
}

// AppendLog prints a log entry. Consecutive identical texts are counted
// instead of printed, malformed entries are always printed.
func (v *View) AppendLog(entry model.LogEntry) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if entry.Malformed {
		v.flushRepeats()
		v.println(v.st.dim.Render(entry.Time.Local().Format("15:04:05")) + " " + v.st.err.Render(entry.Text))
		return
	}
	if v.hasLast && entry.Text == v.last {
		v.repeats++
		return
	}
	v.flushRepeats()
	v.last, v.hasLast = entry.Text, true
	v.println(v.st.dim.Render(entry.Time.Local().Format("15:04:05")) + " " + entry.Text)
}

func (v *View) flushRepeats() {
	if v.repeats > 0 {
		v.println(v.st.dim.Render(fmt.Sprintf("         (%d more identical)", v.repeats)))
	}
	v.last, v.hasLast = "", false
	v.repeats = 0
}

func (v *View) SetSummary(text string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.flushRepeats()
	v.println(v.st.status.Render("summary"))
	v.println(v.st.summary.Render(text))
}

func (v *View) ShowDownload(url string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.flushRepeats()
	v.println("download: " + v.st.done.Render(url))
}

func (v *View) SetSubmitEnabled(enabled bool) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if enabled {
		v.flushRepeats()
	}
	v.submit = enabled
}

// SubmitEnabled reports whether a new run may be started.
func (v *View) SubmitEnabled() bool {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.submit
}

// Counters returns the last shown api call and cache hit counters.
func (v *View) Counters() (apiCalls, cached int) {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.apiCalls, v.cached
}
