package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/doctrans/doctrans/internal/client"
	"github.com/doctrans/doctrans/internal/console"
	"github.com/doctrans/doctrans/internal/job"
	"github.com/doctrans/doctrans/internal/log"
	"github.com/doctrans/doctrans/internal/model"
	"github.com/doctrans/doctrans/internal/parallel"
	"github.com/doctrans/doctrans/internal/selection"
	"github.com/doctrans/doctrans/internal/store"
	"github.com/doctrans/doctrans/internal/summary"
)

// fetchLimit bounds concurrent artifact downloads after a run.
const fetchLimit = 2

func cmdContext(cmd *cobra.Command) context.Context {
	attrs := slog.Group("doctrans",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

func newClient(cfg model.Config) (*client.Client, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Server.URL, timeout)
}

func serverFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "translation server url, e.g. http://127.0.0.1:5000")
}

func outputDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("output-dir", "", "directory for stored documents")
}

func (a *app) translateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <file>",
		Short: "submit a docx or pdf document and follow its translation",
		Args:  cobra.ExactArgs(1),
		RunE:  a.doTranslate,
	}
	serverFlag(cmd)
	outputDirFlag(cmd)
	f := cmd.Flags()
	f.String("lang", "", "target language code, e.g. es")
	f.String("engine", "", "translation engine: gemini or groq")
	f.Bool("summary", false, "generate a summary of the document")
	f.Bool("first-page-only", false, "translate the first page only")
	f.String("tone", "", "tone of the translation")
	f.String("pdf-engine", "", "pdf conversion engine: pdf2docx or aspose")
	f.Bool("download", false, "download the translated document")
	f.Bool("export-summary", false, "export the generated summary as a document")
	f.String("summary-file", "", "replace the generated summary with the content of this file before exporting it")
	return cmd
}

func (a *app) doTranslate(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	cfg, err := settings(cmd, a.config)
	if err != nil {
		return err
	}
	cl, err := newClient(cfg)
	if err != nil {
		return err
	}
	validator, err := selection.NewValidator(cfg.Accept...)
	if err != nil {
		return err
	}

	view := console.New(cmd.OutOrStdout())
	ctrl := job.New(cl, validator, view)
	if cfg.History.Path != "" {
		h, err := store.Open(ctx, cfg.History.Path)
		if err != nil {
			slog.WarnContext(ctx, "run history disabled", "path", cfg.History.Path, "error", err)
		} else {
			defer func() {
				_ = h.Close()
			}()
			ctrl.WithRecorder(h)
		}
	}

	path := args[0]
	if err := ctrl.Select(ctx, filepath.Base(path)); err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	out, err := ctrl.Run(ctx, cfg.JobOptions(), content)
	if err != nil {
		return err
	}

	editor := summary.NewEditor()
	if out.State.HasSummary {
		editor.Show(out.State.Summary)
	}
	summaryFile, _ := cmd.Flags().GetString("summary-file")
	if summaryFile != "" {
		if err := editSummary(editor, summaryFile); err != nil {
			return err
		}
	}

	var tasks []parallel.Task
	if cfg.Output.Download {
		tasks = append(tasks, downloadTask(cl, out.State.DownloadURL))
	}
	if cfg.Output.ExportSummary {
		if editor.Mode() == summary.Hidden {
			slog.WarnContext(ctx, "no summary to export, run with --summary")
		} else {
			tasks = append(tasks, exportTask(editor, cl))
		}
	}
	return saveAll(ctx, cmd.OutOrStdout(), cfg.Output.Dir, tasks...)
}

func editSummary(editor *summary.Editor, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading summary: %w", err)
	}
	if err := editor.Edit(); err != nil {
		return err
	}
	if err := editor.SetDraft(string(text)); err != nil {
		return err
	}
	return editor.Save()
}

func downloadTask(cl *client.Client, downloadURL string) parallel.Task {
	return parallel.Task{
		Label: "document",
		Fetch: func(ctx context.Context) (client.Artifact, error) {
			return cl.Download(ctx, downloadURL)
		},
	}
}

func exportTask(editor *summary.Editor, exp summary.Exporter) parallel.Task {
	return parallel.Task{
		Label: "summary",
		Fetch: func(ctx context.Context) (client.Artifact, error) {
			var buf bytes.Buffer
			name, err := editor.Export(ctx, exp, &buf)
			if err != nil {
				return client.Artifact{}, err
			}
			return client.Artifact{Name: name, Body: io.NopCloser(&buf)}, nil
		},
	}
}

func saveAll(ctx context.Context, w io.Writer, dir string, tasks ...parallel.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	saved, err := parallel.Save(ctx, dir, fetchLimit, tasks...)
	for _, s := range saved {
		switch {
		case s.Err != nil:
		case s.ContentType != "":
			_, _ = fmt.Fprintf(w, "saved %s: %s (%s)\n", s.Label, s.Path, s.ContentType)
		default:
			_, _ = fmt.Fprintf(w, "saved %s: %s\n", s.Label, s.Path)
		}
	}
	return err
}

func (a *app) clearCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "drop the translation cache of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			cfg, err := settings(cmd, a.config)
			if err != nil {
				return err
			}
			cl, err := newClient(cfg)
			if err != nil {
				return err
			}
			ctrl := job.New(cl, selection.Validator{}, console.New(cmd.OutOrStdout()))
			return ctrl.ClearCache(ctx, cl)
		},
	}
	serverFlag(cmd)
	return cmd
}

func (a *app) exportSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-summary [file]",
		Short: "turn a summary text into a document, reads stdin without a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			cfg, err := settings(cmd, a.config)
			if err != nil {
				return err
			}
			cl, err := newClient(cfg)
			if err != nil {
				return err
			}

			var text []byte
			if len(args) == 1 {
				text, err = os.ReadFile(args[0])
			} else {
				text, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading summary: %w", err)
			}

			editor := summary.NewEditor()
			editor.Show(string(text))
			return saveAll(ctx, cmd.OutOrStdout(), cfg.Output.Dir, exportTask(editor, cl))
		},
	}
	serverFlag(cmd)
	outputDirFlag(cmd)
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "download a translated document, e.g. /download/report_es.docx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			cfg, err := settings(cmd, a.config)
			if err != nil {
				return err
			}
			cl, err := newClient(cfg)
			if err != nil {
				return err
			}
			return saveAll(ctx, cmd.OutOrStdout(), cfg.Output.Dir, downloadTask(cl, args[0]))
		},
	}
	serverFlag(cmd)
	outputDirFlag(cmd)
	return cmd
}

var errNoHistory = errors.New("run history is disabled, set history.path in the config")

func (a *app) openHistory(ctx context.Context) (*store.History, error) {
	if a.config.History.Path == "" {
		return nil, errNoHistory
	}
	return store.Open(ctx, a.config.History.Path)
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "list recent translation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = h.Close()
			}()
			runs, err := h.List(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list, 0 lists all")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <uuid>",
		Short: "remove a run from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = h.Close()
			}()
			return h.Delete(ctx, args[0])
		},
	})
	return cmd
}
