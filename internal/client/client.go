package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/doctrans/doctrans/internal/model"
)

const (
	translatePath     = "translate"
	clearCachePath    = "clear-cache"
	exportSummaryPath = "export-summary"

	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// error bodies are only read for the message
	maxErrorBody = 64 * 1024
)

// StatusError is returned for a non-success response of the server.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status code: %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: status code: %d, detail: %s", e.Op, e.Code, e.Body)
}

// Client talks to the translation server.
type Client struct {
	baseURL *url.URL
	// client is used for calls with a bounded response.
	client *http.Client
	// streamClient has no timeout, a running job is bounded by its context only.
	streamClient *http.Client
}

func New(serverURL string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the server url with a scheme and without path, e.g. `http://127.0.0.1:5000`")
	}

	return &Client{
		baseURL:      parsedURL,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}, nil
}

// WithHTTPClient replaces both underlying clients, used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	c.streamClient = hc
	return c
}

func (c *Client) endpoint(p string) string {
	u := *c.baseURL
	u.Path = "/" + strings.TrimLeft(p, "/")
	return u.String()
}

// Translate submits a job and returns the streamed response body. The caller
// must close it. A non-success response is returned as *StatusError wrapped
// in model.ErrSubmissionFailed.
func (c *Client) Translate(ctx context.Context, req model.JobRequest) (io.ReadCloser, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", path.Base(req.FileName))
	if err != nil {
		return nil, fmt.Errorf("creating multipart file: %w", err)
	}
	if _, err := fw.Write(req.Content); err != nil {
		return nil, fmt.Errorf("writing multipart file: %w", err)
	}
	for _, field := range [][2]string{
		{"targetLang", req.TargetLang},
		{"engine", req.Engine},
		{"generateSummary", strconv.FormatBool(req.GenerateSummary)},
		{"firstPageOnly", strconv.FormatBool(req.FirstPageOnly)},
		{"tone", req.Tone},
		{"pdfEngine", req.PDFEngine},
	} {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("writing multipart field %s: %w", field[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(translatePath), &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSubmissionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, fmt.Errorf("%w: %w", model.ErrSubmissionFailed, statusError("translate", resp))
	}
	slog.DebugContext(ctx, "translation job submitted",
		slog.String("file", req.FileName),
		slog.Int("size", len(req.Content)),
		slog.String("content_type", resp.Header.Get("Content-Type")))
	return resp.Body, nil
}

// ClearCache asks the server to drop its translation cache and returns its
// confirmation message.
func (c *Client) ClearCache(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(clearCachePath), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrClearCacheFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %w", model.ErrClearCacheFailed, statusError("clear cache", resp))
	}

	var cr struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decoding json response failed: %w", model.ErrClearCacheFailed, err)
	}
	if cr.Status != "" && cr.Status != "success" {
		return "", fmt.Errorf("%w: server status %q: %s", model.ErrClearCacheFailed, cr.Status, cr.Message)
	}
	return cr.Message, nil
}

// Artifact is a downloadable document. The caller must close Body.
type Artifact struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}

// ExportSummary turns the summary text into a document.
func (c *Client) ExportSummary(ctx context.Context, summary string) (Artifact, error) {
	payload, err := json.Marshal(struct {
		Summary string `json:"summary"`
	}{Summary: summary})
	if err != nil {
		return Artifact{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(exportSummaryPath), bytes.NewReader(payload))
	if err != nil {
		return Artifact{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", model.ErrExportFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return Artifact{}, fmt.Errorf("%w: %w", model.ErrExportFailed, statusError("export summary", resp))
	}
	return artifact(resp, "document_summary.docx"), nil
}

// Download fetches the document a completed run points to. downloadURL is
// the server relative url from the stream, e.g. /download/report.
func (c *Client) Download(ctx context.Context, downloadURL string) (Artifact, error) {
	ref, err := url.Parse(downloadURL)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: parsing download url: %w", model.ErrDownloadFailed, err)
	}
	target := c.baseURL.ResolveReference(ref)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Artifact{}, err
	}
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", model.ErrDownloadFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return Artifact{}, fmt.Errorf("%w: %w", model.ErrDownloadFailed, statusError("download", resp))
	}
	return artifact(resp, "translated_"+path.Base(ref.Path)+".docx"), nil
}

func artifact(resp *http.Response, fallback string) Artifact {
	name := fallback
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			name = path.Base(params["filename"])
		}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = docxContentType
	}
	return Artifact{
		Name:        name,
		ContentType: contentType,
		Body:        resp.Body,
	}
}

// statusError reads the error detail, which is either plain text or a JSON
// object with an error or message field.
func statusError(op string, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if contentType == "application/json" {
		var problem struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &problem); err == nil {
			switch {
			case problem.Error != "":
				detail = problem.Error
			case problem.Message != "":
				detail = problem.Message
			}
		}
	}
	return &StatusError{Op: op, Code: resp.StatusCode, Body: detail}
}
