package job_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/doctrans/doctrans/internal/client"
	"github.com/doctrans/doctrans/internal/job"
	"github.com/doctrans/doctrans/internal/model"
	"github.com/doctrans/doctrans/internal/selection"
	"github.com/doctrans/doctrans/internal/syncer/syncertest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

type submitFunc func(ctx context.Context, req model.JobRequest) (io.ReadCloser, error)

func (f submitFunc) Translate(ctx context.Context, req model.JobRequest) (io.ReadCloser, error) {
	return f(ctx, req)
}

func body(lines ...string) submitFunc {
	return func(context.Context, model.JobRequest) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), nil
	}
}

type recorder struct {
	mx     sync.Mutex
	events []string
	err    error
}

func (r *recorder) add(format string, args ...any) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	return r.err
}

func (r *recorder) RunStarted(_ context.Context, _, file string) error {
	return r.add("started %s", file)
}

func (r *recorder) RunCompleted(_ context.Context, _, url string) error {
	return r.add("completed %s", url)
}

func (r *recorder) RunIncomplete(_ context.Context, _, reason string) error {
	return r.add("incomplete %s", reason)
}

func (r *recorder) RunFailed(_ context.Context, _, reason string) error {
	return r.add("failed %s", reason)
}

func newController(t *testing.T, sub job.Submitter) (*job.Controller, *syncertest.View) {
	t.Helper()
	v, err := selection.NewValidator()
	require.NoError(t, err)
	view := syncertest.New()
	c := job.New(sub, v, view)
	require.NoError(t, c.Select(t.Context(), "report.docx"))
	return c, view
}

func TestRunCompleted(t *testing.T) {
	var got model.JobRequest
	sub := func(_ context.Context, req model.JobRequest) (io.ReadCloser, error) {
		got = req
		return body(
			`{"progress":10,"status":"Translating","message":"start"}`,
			`{"apiCalls":4}`,
			`{"downloadUrl":"/download/abc"}`,
		)(t.Context(), req)
	}
	rec := &recorder{}
	c, view := newController(t, submitFunc(sub))
	c.WithRecorder(rec).WithChunkSize(7)

	opts := model.JobOptions{TargetLang: "de", Engine: model.EngineGemini}
	out, err := c.Run(t.Context(), opts, []byte("PK"))
	require.NoError(t, err)

	require.Equal(t, "report.docx", got.FileName)
	require.Equal(t, "de", got.TargetLang)
	require.Equal(t, []byte("PK"), got.Content)

	require.Equal(t, job.PhaseCompleted, out.Phase)
	require.NotEmpty(t, out.RunID)
	require.Equal(t, out.RunID, out.State.RunID)
	require.Equal(t, 100, out.State.Progress)
	require.Equal(t, 4, out.State.APICalls)
	require.Equal(t, 0, out.State.Cached)
	require.Equal(t, "/download/abc", out.State.DownloadURL)
	require.Equal(t, model.StatusCompleted, out.State.Status)
	require.False(t, out.State.Running)
	require.Len(t, out.Log, 1)
	require.Equal(t, "start", out.Log[0].Text)

	require.Equal(t, []syncertest.Call{
		"submit true",
		"submit false",
		"indeterminate true",
		"progress 0",
		"status " + model.StatusUploading,
		"indeterminate false",
		"progress 10",
		"status Translating",
		"log start",
		"counters 4 0",
		"status " + model.StatusCompleted,
		"progress 100",
		"download /download/abc",
		"indeterminate false",
		"submit true",
	}, view.Calls())

	require.Equal(t, job.PhaseIdle, c.Phase())
	require.Equal(t, []string{"started report.docx", "completed /download/abc"}, rec.events)
}

func TestRunReenablesSubmit(t *testing.T) {
	type expect struct {
		phase  job.Phase
		status string
		err    error
		log    string
	}
	boom := errors.New("boom")
	crashed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	}))
	t.Cleanup(crashed.Close)
	crashedClient, err := client.New(crashed.URL, 5*time.Second)
	require.NoError(t, err)

	var testCases = []struct {
		scenario string
		given    job.Submitter
		then     expect
	}{
		{
			scenario: "completed",
			given:    body(`{"downloadUrl":"/download/x"}`),
			then: expect{phase: job.PhaseCompleted, status: model.StatusCompleted},
		},
		{
			scenario: "incomplete",
			given:    body(`{"progress":90,"status":"Almost there"}`),
			then: expect{phase: job.PhaseIncomplete, status: model.StatusIncomplete, err: model.ErrIncompleteRun, log: "Stream ended without a download URL"},
		},
		{
			scenario: "incomplete keeps server error status",
			given:    body(`{"status":"Error","message":"engine quota exceeded"}`),
			then: expect{phase: job.PhaseIncomplete, status: model.StatusError, err: model.ErrIncompleteRun, log: "engine quota exceeded"},
		},
		{
			scenario: "submission failed",
			given: submitFunc(func(context.Context, model.JobRequest) (io.ReadCloser, error) {
				return nil, boom
			}),
			then: expect{phase: job.PhaseFailed, status: model.StatusError, err: model.ErrSubmissionFailed, log: "submission failed: boom"},
		},
		{
			scenario: "server error",
			given:    crashedClient,
			then: expect{phase: job.PhaseFailed, status: model.StatusError, err: model.ErrSubmissionFailed, log: "status code: 500"},
		},
		{
			scenario: "transport error",
			given: submitFunc(func(context.Context, model.JobRequest) (io.ReadCloser, error) {
				r := io.MultiReader(
					strings.NewReader("{\"progress\":5}\n{\"downloadUrl\":\"/download/late\"}\n"),
					iotest.ErrReader(boom),
				)
				return io.NopCloser(r), nil
			}),
			then: expect{phase: job.PhaseFailed, status: model.StatusError, err: model.ErrStreamTransport, log: "Connection lost: stream transport error: boom"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			c, view := newController(t, tc.given)
			out, err := c.Run(t.Context(), model.JobOptions{}, nil)
			if tc.then.err != nil {
				require.ErrorIs(t, err, tc.then.err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.then.phase, out.Phase)
			require.Equal(t, tc.then.status, view.Status)
			require.Equal(t, tc.then.status, out.State.Status)
			if tc.then.log != "" {
				require.Contains(t, strings.Join(view.LogTexts(), "\n"), tc.then.log)
			}
			require.True(t, view.SubmitEnabled)
			require.False(t, view.Indeterminate)
			require.Equal(t, job.PhaseIdle, c.Phase())
		})
	}
}

func TestRunPanicReenablesSubmit(t *testing.T) {
	c, view := newController(t, submitFunc(func(context.Context, model.JobRequest) (io.ReadCloser, error) {
		panic("submitter exploded")
	}))
	require.Panics(t, func() {
		_, _ = c.Run(t.Context(), model.JobOptions{}, nil)
	})
	require.True(t, view.SubmitEnabled)
	require.Equal(t, job.PhaseIdle, c.Phase())
}

func TestRunGuards(t *testing.T) {
	v, err := selection.NewValidator()
	require.NoError(t, err)

	t.Run("no selection", func(t *testing.T) {
		c := job.New(body(), v, nil)
		_, err := c.Run(t.Context(), model.JobOptions{}, nil)
		require.ErrorIs(t, err, model.ErrNoSelection)
	})

	t.Run("single run", func(t *testing.T) {
		pr, pw := io.Pipe()
		streaming := make(chan struct{})
		c, view := newController(t, submitFunc(func(context.Context, model.JobRequest) (io.ReadCloser, error) {
			close(streaming)
			return pr, nil
		}))

		var wg sync.WaitGroup
		var out job.Outcome
		var runErr error
		wg.Go(func() {
			out, runErr = c.Run(t.Context(), model.JobOptions{}, nil)
		})

		<-streaming
		require.Eventually(t, func() bool { return c.Phase() == job.PhaseStreaming }, time.Second, time.Millisecond)
		require.Contains(t, view.Calls(), syncertest.Call("submit false"))

		_, err := c.Run(t.Context(), model.JobOptions{}, nil)
		require.ErrorIs(t, err, model.ErrJobInProgress)
		require.ErrorIs(t, c.Select(t.Context(), "other.pdf"), model.ErrJobInProgress)

		_, err = io.WriteString(pw, "{\"downloadUrl\":\"/download/1\"}\n")
		require.NoError(t, err)
		require.NoError(t, pw.Close())
		wg.Wait()

		require.NoError(t, runErr)
		require.Equal(t, job.PhaseCompleted, out.Phase)
		require.Equal(t, job.PhaseIdle, c.Phase())
	})
}

func TestSelect(t *testing.T) {
	c, view := newController(t, body())
	sel, ok := c.Selection()
	require.True(t, ok)
	require.Equal(t, "report.docx", sel.Name())

	err := c.Select(t.Context(), "notes.txt")
	require.ErrorIs(t, err, model.ErrSelectionRejected)
	_, ok = c.Selection()
	require.False(t, ok, "rejection clears the previous selection")
	require.False(t, view.SubmitEnabled)
	require.Equal(t, model.StatusRejected, view.Status)
	require.Len(t, view.LogTexts(), 1)

	_, err = c.Run(t.Context(), model.JobOptions{}, nil)
	require.ErrorIs(t, err, model.ErrNoSelection)

	require.NoError(t, c.Select(t.Context(), "Scan.PDF"))
	require.True(t, view.SubmitEnabled)
}

func TestRunLogResetsPerRun(t *testing.T) {
	c, _ := newController(t, body(`{"message":"hello"}`, `{"downloadUrl":"/d"}`))
	out, err := c.Run(t.Context(), model.JobOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, out.Log, 1)

	out, err = c.Run(t.Context(), model.JobOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, out.Log, 1)
	require.NotEqual(t, "", out.RunID)
}

func TestRunRecorderErrorIgnored(t *testing.T) {
	c, _ := newController(t, body(`{"downloadUrl":"/d"}`))
	c.WithRecorder(&recorder{err: errors.New("disk full")})
	out, err := c.Run(t.Context(), model.JobOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, job.PhaseCompleted, out.Phase)
}

type clearFunc func(ctx context.Context) (string, error)

func (f clearFunc) ClearCache(ctx context.Context) (string, error) {
	return f(ctx)
}

func TestClearCache(t *testing.T) {
	c, view := newController(t, body(`{"apiCalls":3,"cached":2}`, `{"downloadUrl":"/d"}`))
	_, err := c.Run(t.Context(), model.JobOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, view.APICalls)

	err = c.ClearCache(t.Context(), clearFunc(func(context.Context) (string, error) {
		return "Cache cleared", nil
	}))
	require.NoError(t, err)
	require.Equal(t, 0, view.APICalls)
	require.Equal(t, 0, view.Cached)
	require.Contains(t, view.LogTexts(), "Cache cleared")

	boom := errors.New("clear cache: status code: 500")
	err = c.ClearCache(t.Context(), clearFunc(func(context.Context) (string, error) {
		return "", boom
	}))
	require.ErrorIs(t, err, boom)
	require.Equal(t, model.StatusCacheError, view.Status)
}

func TestRunOverHTTP(t *testing.T) {
	lang := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lang <- r.FormValue("targetLang")

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"progress":50,"status":"Translating","message":"Translating paragraph 1/2"}`,
			`{"progress":100,"summary":"A short report."}`,
			`{"downloadUrl":"/download/report_fr.docx"}`,
		} {
			_, _ = io.WriteString(w, line+"\n")
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	cl, err := client.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	c, view := newController(t, cl)

	out, err := c.Run(t.Context(), model.JobOptions{TargetLang: "fr"}, []byte("PK\x03\x04"))
	require.NoError(t, err)
	require.Equal(t, "fr", <-lang)
	require.Equal(t, job.PhaseCompleted, out.Phase)
	require.True(t, out.State.HasSummary)
	require.Equal(t, "A short report.", view.Summary)
	require.Equal(t, "/download/report_fr.docx", view.Download)
	require.Equal(t, []string{"Translating paragraph 1/2"}, view.LogTexts())
}
