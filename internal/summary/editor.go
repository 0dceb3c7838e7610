// Package summary holds the user side of a generated summary: showing it,
// editing a draft, committing the draft and exporting the committed text.
//
// States:
//
//	Hidden --Show--> Viewing --Edit--> Editing --Save--> Viewing
//
// Export always sends the committed text, never the draft. A failed export
// leaves the editor untouched.
package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/doctrans/doctrans/internal/client"
)

type Mode int

const (
	Hidden Mode = iota
	Viewing
	Editing
)

func (m Mode) String() string {
	switch m {
	case Hidden:
		return "hidden"
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	ErrNoSummary  = errors.New("no summary available")
	ErrNotEditing = errors.New("summary is not being edited")
	ErrEditing    = errors.New("summary is being edited")
)

// Exporter produces a document from a summary text.
type Exporter interface {
	ExportSummary(ctx context.Context, summary string) (client.Artifact, error)
}

// Editor is not safe for concurrent use.
type Editor struct {
	mode    Mode
	current string
	draft   string
}

func NewEditor() *Editor {
	return &Editor{mode: Hidden}
}

func (e *Editor) Mode() Mode { return e.mode }

// Current returns the committed summary.
func (e *Editor) Current() string { return e.current }

// Draft returns the text being edited.
func (e *Editor) Draft() string { return e.draft }

// Show displays a summary received from the server. An edit in progress
// keeps its draft, the new text becomes the committed one.
func (e *Editor) Show(text string) {
	e.current = text
	if e.mode == Hidden {
		e.mode = Viewing
	}
}

// Edit seeds the draft from the displayed summary.
func (e *Editor) Edit() error {
	switch e.mode {
	case Hidden:
		return ErrNoSummary
	case Editing:
		return ErrEditing
	}
	e.draft = e.current
	e.mode = Editing
	return nil
}

// SetDraft replaces the draft text.
func (e *Editor) SetDraft(text string) error {
	if e.mode != Editing {
		return ErrNotEditing
	}
	e.draft = text
	return nil
}

// Save commits the draft as is, no validation is made.
func (e *Editor) Save() error {
	if e.mode != Editing {
		return ErrNotEditing
	}
	e.current = e.draft
	e.draft = ""
	e.mode = Viewing
	return nil
}

// Export sends the committed summary to the exporter and copies the resulting
// document to w. It returns the document name proposed by the server.
func (e *Editor) Export(ctx context.Context, exp Exporter, w io.Writer) (string, error) {
	if e.mode == Hidden {
		return "", ErrNoSummary
	}
	committed := e.current

	a, err := exp.ExportSummary(ctx, committed)
	if err != nil {
		slog.ErrorContext(ctx, "summary export failed", "error", err)
		return "", err
	}
	defer func() {
		_ = a.Body.Close()
	}()
	n, err := io.Copy(w, a.Body)
	if err != nil {
		return "", fmt.Errorf("saving summary document: %w", err)
	}
	slog.DebugContext(ctx, "summary exported", "name", a.Name, "bytes", n)
	return a.Name, nil
}
