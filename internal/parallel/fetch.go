// Package parallel fetches the artifacts of a finished run concurrently.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/doctrans/doctrans/internal/client"
)

// Task produces one artifact, e.g. the translated document or the
// exported summary.
type Task struct {
	Label string
	Fetch func(context.Context) (client.Artifact, error)
}

// Saved is the result of one Task. ContentType is the media type the
// server reported for the artifact, empty when unknown.
type Saved struct {
	Label       string
	Path        string
	ContentType string
	Err         error
}

// Save runs tasks with at most limit of them in flight and writes every
// artifact into dir. A failing task does not cancel the others, the
// returned error joins all task errors. Results keep the order of tasks.
func Save(ctx context.Context, dir string, limit int, tasks ...Task) ([]Saved, error) {
	if limit <= 0 {
		limit = len(tasks)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	ret := make([]Saved, len(tasks))
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, task := range tasks {
		g.Go(func() error {
			ret[i] = save(ctx, dir, task)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, s := range ret {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Label, s.Err))
		}
	}
	return ret, errors.Join(errs...)
}

func save(ctx context.Context, dir string, task Task) Saved {
	s := Saved{Label: task.Label}
	if err := ctx.Err(); err != nil {
		s.Err = err
		return s
	}

	art, err := task.Fetch(ctx)
	if err != nil {
		s.Err = err
		return s
	}
	defer func() {
		_ = art.Body.Close()
	}()

	s.Path = filepath.Join(dir, filepath.Base(art.Name))
	s.ContentType = art.ContentType
	s.Err = writeFile(s.Path, art.Body)
	if s.Err != nil {
		return s
	}
	slog.InfoContext(ctx, "artifact saved",
		"label", task.Label,
		"path", s.Path,
		"content_type", s.ContentType)
	return s
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
