package model

import (
	"errors"
)

var (
	ErrSelectionRejected = errors.New("selection rejected")
	ErrNoSelection       = errors.New("no file selected")
	ErrJobInProgress     = errors.New("job in progress")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrStreamTransport   = errors.New("stream transport error")
	ErrIncompleteRun     = errors.New("run ended without a download url")
	ErrExportFailed      = errors.New("summary export failed")
	ErrClearCacheFailed  = errors.New("clear cache failed")
	ErrDownloadFailed    = errors.New("download failed")
)
