// Package selection gatekeeps job submission on the document type.
package selection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doctrans/doctrans/internal/model"
)

// Validator accepts file names by their case-insensitive suffix.
type Validator struct {
	accepted []model.Extension
}

// NewValidator returns a validator for the given extensions, docx and pdf
// when none are given. Only docx and pdf are supported by the server.
func NewValidator(accepted ...string) (Validator, error) {
	if len(accepted) == 0 {
		return Validator{accepted: []model.Extension{model.ExtDOCX, model.ExtPDF}}, nil
	}
	exts := make([]model.Extension, 0, len(accepted))
	for _, a := range accepted {
		ext := model.Extension(strings.ToLower(strings.TrimPrefix(a, ".")))
		switch ext {
		case model.ExtDOCX, model.ExtPDF:
			exts = append(exts, ext)
		default:
			return Validator{}, fmt.Errorf("unsupported extension %q", a)
		}
	}
	return Validator{accepted: exts}, nil
}

// Validate returns the selection for name or an error wrapping
// model.ErrSelectionRejected. The rejection reason is logged.
func (v Validator) Validate(ctx context.Context, name string) (model.FileSelection, error) {
	sel, err := model.ParseFileSelection(name, v.accepted...)
	if err != nil {
		slog.WarnContext(ctx, "file selection rejected", "file", name, "error", err)
		return model.FileSelection{}, err
	}
	slog.DebugContext(ctx, "file selection accepted", "file", name, "extension", sel.Extension())
	return sel, nil
}

// Accepted returns the accepted extensions.
func (v Validator) Accepted() []model.Extension {
	return append([]model.Extension(nil), v.accepted...)
}
