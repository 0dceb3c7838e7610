package model

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Extension is an accepted document suffix, lowercased and without the dot.
type Extension string

const (
	ExtDOCX Extension = "docx"
	ExtPDF  Extension = "pdf"
)

// StatusError is the status text the server and the client use for failed runs.
const StatusError = "Error"

// Status texts the client shows on its own.
const (
	StatusUploading  = "Uploading document..."
	StatusCompleted  = "Translation completed"
	StatusIncomplete = "Translation did not complete"
	StatusRejected   = "Unsupported file type"
	StatusCacheError = "Clearing cache failed"
)

// FileSelection is a document chosen for translation. The zero value is not
// a valid selection, use ParseFileSelection.
type FileSelection struct {
	name string
	ext  Extension
}

// ParseFileSelection accepts name iff its lowercased suffix is one of accepted.
func ParseFileSelection(name string, accepted ...Extension) (FileSelection, error) {
	suffix := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if suffix == "" {
		return FileSelection{}, fmt.Errorf("%w: %q has no file extension", ErrSelectionRejected, name)
	}
	ext := Extension(suffix)
	if !slices.Contains(accepted, ext) {
		return FileSelection{}, fmt.Errorf("%w: %q: extension %q is not one of %v", ErrSelectionRejected, name, suffix, accepted)
	}
	return FileSelection{name: name, ext: ext}, nil
}

func (s FileSelection) Name() string         { return s.name }
func (s FileSelection) Extension() Extension { return s.ext }
func (s FileSelection) IsZero() bool         { return s.name == "" }

// JobOptions are the user chosen translation parameters.
type JobOptions struct {
	TargetLang      string
	Engine          string
	GenerateSummary bool
	FirstPageOnly   bool
	Tone            string
	PDFEngine       string
}

// JobRequest is everything submitted to the server for one run.
// It must not be modified after submission.
type JobRequest struct {
	JobOptions
	FileName string
	Content  []byte
}

// Kind names one variant of a progress record.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindStatus    Kind = "status"
	KindCounters  Kind = "counters"
	KindMessage   Kind = "message"
	KindSummary   Kind = "summary"
	KindCompleted Kind = "completed"
	KindMalformed Kind = "malformed"
)

// Record is one interpreted stream line. A well formed line carries any
// subset of the optional fields, a line that is not a JSON object is
// Malformed and keeps only Raw.
type Record struct {
	Progress    *int
	Status      *string
	APICalls    *int
	Cached      *int
	Message     *string
	Summary     *string
	DownloadURL *string

	Malformed bool
	Raw       string
}

// Kinds lists the variants present in r, in the order they are applied.
func (r Record) Kinds() []Kind {
	if r.Malformed {
		return []Kind{KindMalformed}
	}
	var ret []Kind
	if r.Progress != nil {
		ret = append(ret, KindProgress)
	}
	if r.Status != nil {
		ret = append(ret, KindStatus)
	}
	if r.APICalls != nil || r.Cached != nil {
		ret = append(ret, KindCounters)
	}
	if r.Message != nil {
		ret = append(ret, KindMessage)
	}
	if r.Summary != nil {
		ret = append(ret, KindSummary)
	}
	if r.DownloadURL != nil {
		ret = append(ret, KindCompleted)
	}
	return ret
}

// JobState is the state of a single run. It has exactly one writer at a time.
type JobState struct {
	RunID       string
	Progress    int // not monotonic, the server may move it back
	Status      string
	APICalls    int
	Cached      int
	Summary     string
	HasSummary  bool
	DownloadURL string // first write wins, see SetDownloadURL
	Running     bool
}

// SetDownloadURL records the terminal download url unless one was already
// set during this run. It reports whether url was stored.
func (s *JobState) SetDownloadURL(url string) bool {
	if s.DownloadURL != "" {
		return false
	}
	s.DownloadURL = url
	return true
}

// Completed reports whether the server announced the artifact.
func (s *JobState) Completed() bool {
	return s.DownloadURL != ""
}

// LogEntry is an immutable line of the run log. Malformed marks entries
// reporting a stream line that could not be parsed.
type LogEntry struct {
	Time      time.Time
	Text      string
	Malformed bool
}
