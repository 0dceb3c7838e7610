package model_test

import (
	"testing"

	"github.com/doctrans/doctrans/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseFileSelection(t *testing.T) {
	t.Parallel()
	type then struct {
		ext model.Extension
		ok  bool
	}
	var testCases = []struct {
		scenario string
		given    string
		then     then
	}{
		{"docx", "report.docx", then{model.ExtDOCX, true}},
		{"upper case pdf", "Report.PDF", then{model.ExtPDF, true}},
		{"mixed case", "a.b.DocX", then{model.ExtDOCX, true}},
		{"path", "/tmp/in/contract.pdf", then{model.ExtPDF, true}},
		{"txt", "report.txt", then{"", false}},
		{"no extension", "pdf", then{"", false}},
		{"suffix without dot", "reportpdf", then{"", false}},
		{"empty", "", then{"", false}},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			sel, err := model.ParseFileSelection(tc.given, model.ExtDOCX, model.ExtPDF)
			if !tc.then.ok {
				require.ErrorIs(t, err, model.ErrSelectionRejected)
				require.True(t, sel.IsZero())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.given, sel.Name())
			require.Equal(t, tc.then.ext, sel.Extension())
		})
	}
}

func TestJobStateDownloadURL(t *testing.T) {
	var state model.JobState
	require.False(t, state.Completed())
	require.True(t, state.SetDownloadURL("/download/a"))
	require.False(t, state.SetDownloadURL("/download/b"))
	require.Equal(t, "/download/a", state.DownloadURL)
	require.True(t, state.Completed())
}

func TestRecordKinds(t *testing.T) {
	progress := 10
	msg := "start"
	url := "/x"
	r := model.Record{Progress: &progress, Message: &msg, DownloadURL: &url}
	require.Equal(t, []model.Kind{model.KindProgress, model.KindMessage, model.KindCompleted}, r.Kinds())

	require.Equal(t, []model.Kind{model.KindMalformed}, model.Record{Malformed: true, Raw: "{"}.Kinds())
	require.Empty(t, model.Record{}.Kinds())
}
