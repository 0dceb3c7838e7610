package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doctrans/doctrans/internal/model"
	"github.com/stretchr/testify/require"
)

const docxType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// fakeServer implements the translation server endpoints used by the client.
type fakeServer struct {
	stream   []string
	exported chan string
	cleared  chan struct{}
	form     chan map[string]string
}

func newFakeServer(t *testing.T, stream ...string) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		stream:   stream,
		exported: make(chan string, 4),
		cleared:  make(chan struct{}, 4),
		form:     make(chan map[string]string, 4),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /translate", fs.translate)
	mux.HandleFunc("GET /download/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, r.PathValue("name")))
		w.Header().Set("Content-Type", docxType)
		_, _ = io.WriteString(w, "translated docx")
	})
	mux.HandleFunc("POST /export-summary", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Summary string `json:"summary"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.exported <- req.Summary
		_, _ = io.WriteString(w, "summary docx")
	})
	mux.HandleFunc("POST /clear-cache", func(w http.ResponseWriter, _ *http.Request) {
		fs.cleared <- struct{}{}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"Cache cleared","status":"success"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) translate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := make(map[string]string)
	for k, v := range r.MultipartForm.Value {
		form[k] = v[0]
	}
	fs.form <- form

	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, line := range fs.stream {
		_, _ = io.WriteString(w, line+"\n")
		w.(http.Flusher).Flush()
	}
}

type fixture struct {
	dir    string
	config string
	outDir string
}

func newFixture(t *testing.T, serverURL string, extra string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		config: filepath.Join(dir, "doctrans.yaml"),
		outDir: filepath.Join(dir, "out"),
	}
	yml := fmt.Sprintf(`version: 0
server:
  url: %s
history:
  path: %s
output:
  dir: %s
%s`, serverURL, filepath.Join(dir, "history.db"), f.outDir, extra)
	require.NoError(t, os.WriteFile(f.config, []byte(yml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.docx"), []byte("PK\x03\x04"), 0o644))
	return f
}

func execute(t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestTranslate(t *testing.T) {
	fs, srv := newFakeServer(t,
		`{"progress":10,"status":"Translating","message":"Translating paragraph 1/2"}`,
		`{"apiCalls":2,"cached":1}`,
		`{"progress":100,"summary":"Generated summary."}`,
		`{"downloadUrl":"/download/report_fr.docx"}`,
	)
	f := newFixture(t, srv.URL, "")
	edited := filepath.Join(f.dir, "summary.txt")
	require.NoError(t, os.WriteFile(edited, []byte("Edited summary."), 0o644))

	out, err := execute(t, &app{}, "",
		"--config", f.config,
		"translate", filepath.Join(f.dir, "report.docx"),
		"--lang", "fr",
		"--summary",
		"--export-summary",
		"--summary-file", edited,
	)
	require.NoError(t, err)

	form := <-fs.form
	require.Equal(t, "fr", form["targetLang"])
	require.Equal(t, "true", form["generateSummary"])
	require.Equal(t, model.EngineGemini, form["engine"])
	require.Equal(t, "Edited summary.", <-fs.exported)

	require.Contains(t, out, "Translating paragraph 1/2")
	require.Contains(t, out, "status: Translation completed")
	require.Contains(t, out, "download: /download/report_fr.docx")

	doc, err := os.ReadFile(filepath.Join(f.outDir, "report_fr.docx"))
	require.NoError(t, err)
	require.Equal(t, "translated docx", string(doc))
	sum, err := os.ReadFile(filepath.Join(f.outDir, "document_summary.docx"))
	require.NoError(t, err)
	require.Equal(t, "summary docx", string(sum))

	out, err = execute(t, &app{}, "", "--config", f.config, "history")
	require.NoError(t, err)
	require.Contains(t, out, `file: "report.docx"`)
	require.Contains(t, out, "outcome: completed")
}

func TestTranslateIncomplete(t *testing.T) {
	_, srv := newFakeServer(t, `{"status":"Error","message":"quota exceeded"}`)
	f := newFixture(t, srv.URL, "")

	out, err := execute(t, &app{}, "", "--config", f.config, "translate", filepath.Join(f.dir, "report.docx"))
	require.ErrorIs(t, err, model.ErrIncompleteRun)
	require.Contains(t, out, "quota exceeded")
	require.NoDirExists(t, f.outDir)

	out, err = execute(t, &app{}, "", "--config", f.config, "history")
	require.NoError(t, err)
	require.Contains(t, out, "outcome: incomplete")
}

func TestTranslateRejectsExtension(t *testing.T) {
	_, srv := newFakeServer(t)
	f := newFixture(t, srv.URL, "")
	notes := filepath.Join(f.dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))

	_, err := execute(t, &app{}, "", "--config", f.config, "translate", notes)
	require.ErrorIs(t, err, model.ErrSelectionRejected)
}

func TestSettings(t *testing.T) {
	_, srv := newFakeServer(t)
	f := newFixture(t, srv.URL, "job:\n  tone: formal\n")

	t.Run("env and flags", func(t *testing.T) {
		t.Setenv("DOCTRANS_JOB_TARGET_LANG", "it")
		a := &app{}
		translate, _, err := newRootCmd(a).Find([]string{"translate"})
		require.NoError(t, err)
		require.NoError(t, translate.ParseFlags([]string{"--config", f.config, "--engine", "groq"}))
		require.NoError(t, a.init(translate, nil))

		cfg, err := settings(translate, a.config)
		require.NoError(t, err)
		require.Equal(t, "it", cfg.Job.TargetLang)
		require.Equal(t, model.EngineGroq, cfg.Job.Engine)
		require.Equal(t, "formal", cfg.Job.Tone)
		require.True(t, cfg.Output.Download)
	})

	t.Run("invalid override", func(t *testing.T) {
		_, err := execute(t, &app{}, "", "--config", f.config,
			"translate", filepath.Join(f.dir, "report.docx"), "--engine", "babelfish")
		require.ErrorContains(t, err, "invalid overrides")
	})
}

func TestClearCache(t *testing.T) {
	fs, srv := newFakeServer(t)
	f := newFixture(t, srv.URL, "")

	out, err := execute(t, &app{}, "", "--config", f.config, "clear-cache")
	require.NoError(t, err)
	<-fs.cleared
	require.Contains(t, out, "api calls: 0, cached: 0")
	require.Contains(t, out, "Cache cleared")
}

func TestExportSummaryStdin(t *testing.T) {
	fs, srv := newFakeServer(t)
	f := newFixture(t, srv.URL, "")

	out, err := execute(t, &app{}, "Summary from stdin.", "--config", f.config, "export-summary")
	require.NoError(t, err)
	require.Equal(t, "Summary from stdin.", <-fs.exported)
	require.Contains(t, out, "saved summary: "+filepath.Join(f.outDir, "document_summary.docx"))
}

func TestDownload(t *testing.T) {
	_, srv := newFakeServer(t)
	f := newFixture(t, srv.URL, "")

	out, err := execute(t, &app{}, "", "--config", f.config, "download", "/download/old.docx", "--output-dir", filepath.Join(f.dir, "dl"))
	require.NoError(t, err)
	require.Contains(t, out, "saved document: "+filepath.Join(f.dir, "dl", "old.docx")+" ("+docxType+")")
	require.FileExists(t, filepath.Join(f.dir, "dl", "old.docx"))
}

func TestDefaultConfigStored(t *testing.T) {
	t.Setenv(configEnv, "")
	a := &app{userConfigPath: filepath.Join(t.TempDir(), "doctrans")}

	out, err := execute(t, a, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "doctrans:")

	path := filepath.Join(a.userConfigPath, "doctrans.yaml")
	require.Equal(t, path, a.configPath)
	fp, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fp.Close() })
	cfg, err := model.LoadConfig(fp)
	require.NoError(t, err)
	require.Equal(t, model.DefaultServerURL, cfg.Server.URL)
	require.Equal(t, filepath.Join(a.userConfigPath, "history.db"), cfg.History.Path)
}

func TestHistoryDisabled(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "doctrans.yaml")
	require.NoError(t, os.WriteFile(config, []byte("version: 0\nserver:\n  url: http://127.0.0.1:5000\n"), 0o644))

	_, err := execute(t, &app{}, "", "--config", config, "history")
	require.ErrorIs(t, err, errNoHistory)
}
