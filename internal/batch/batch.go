// Package batch discovers documents from a file or directory source,
// fans them out through a dispatcher in one of four modes, and
// performs the housekeeping (archival, temp cleanup) a long-running
// batch entry point needs around that.
package batch

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/docetl-project/docetl/internal/dispatcher"
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// Mode selects how Processor fans discovered documents out.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
	ModeAdaptive   Mode = "adaptive"
	ModePriority   Mode = "priority"
)

// Request describes one batch run.
type Request struct {
	Pipeline *domain.PipelineConfig
	Source   string
	Patterns []string
	Mode     Mode

	// PriorityPatterns is only consulted when Mode is ModePriority: its
	// matches are discovered against Source and run first, ahead of
	// whatever Patterns also discovers (duplicates removed there).
	PriorityPatterns []string
}

// Processor fans a pipeline out over a discovered document set.
type Processor struct {
	Dispatcher *dispatcher.Dispatcher
}

// New builds a Processor backed by d.
func New(d *dispatcher.Dispatcher) *Processor {
	return &Processor{Dispatcher: d}
}

// Discover resolves source against patterns into a deduped, sorted
// document path list: a single file matching any pattern is a
// singleton result; a directory is walked recursively per pattern, the
// per-pattern matches unioned, deduped, and sorted.
func Discover(source string, patterns []string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, errs.New(errs.KindIOFailure, "stat discovery source "+source, err)
	}

	if !info.IsDir() {
		base := filepath.Base(source)
		for _, pattern := range patterns {
			matched, err := doublestar.Match(pattern, base)
			if err != nil {
				return nil, errs.New(errs.KindConfigInvalid, "invalid glob pattern "+pattern, err)
			}
			if matched {
				return []string{source}, nil
			}
		}
		return nil, errs.New(errs.KindConfigInvalid, "discovery source matches no pattern: "+source, nil)
	}

	var all []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(source), pattern)
		if err != nil {
			return nil, errs.New(errs.KindConfigInvalid, "invalid glob pattern "+pattern, err)
		}
		for _, m := range matches {
			all = append(all, filepath.Join(source, m))
		}
	}
	all = lo.Uniq(all)
	sort.Strings(all)
	return all, nil
}

// Process discovers req's document set and fans it out per req.Mode.
func (p *Processor) Process(ctx context.Context, req Request) ([]dispatcher.JobResult, dispatcher.Aggregate, error) {
	switch req.Mode {
	case ModePriority:
		return p.processPriority(ctx, req)
	case ModeSequential:
		return p.processSequential(ctx, req)
	case ModeAdaptive:
		paths, err := Discover(req.Source, req.Patterns)
		if err != nil {
			return nil, dispatcher.Aggregate{}, err
		}
		results, agg, _ := p.Dispatcher.DispatchAdaptive(ctx, req.Pipeline, paths)
		return results, agg, nil
	default:
		paths, err := Discover(req.Source, req.Patterns)
		if err != nil {
			return nil, dispatcher.Aggregate{}, err
		}
		results, agg := p.Dispatcher.Dispatch(ctx, req.Pipeline, paths)
		return results, agg, nil
	}
}

// processSequential reuses Dispatch with the pool capped to a single
// worker: sequential mode is parallel mode with concurrency 1, not a
// distinct code path.
func (p *Processor) processSequential(ctx context.Context, req Request) ([]dispatcher.JobResult, dispatcher.Aggregate, error) {
	paths, err := Discover(req.Source, req.Patterns)
	if err != nil {
		return nil, dispatcher.Aggregate{}, err
	}
	seq := &dispatcher.Dispatcher{
		Runner: p.Dispatcher.Runner, Monitor: p.Dispatcher.Monitor,
		PoolSize: 1, DocumentTimeout: p.Dispatcher.DocumentTimeout,
	}
	results, agg := seq.Dispatch(ctx, req.Pipeline, paths)
	return results, agg, nil
}

// processPriority discovers both pattern sets, removes anything also
// matched by the priority set from the normal set, and drains the
// priority lane first.
func (p *Processor) processPriority(ctx context.Context, req Request) ([]dispatcher.JobResult, dispatcher.Aggregate, error) {
	priorityPaths, err := Discover(req.Source, req.PriorityPatterns)
	if err != nil {
		return nil, dispatcher.Aggregate{}, err
	}
	normalPaths, err := Discover(req.Source, req.Patterns)
	if err != nil {
		return nil, dispatcher.Aggregate{}, err
	}
	inPriority := make(map[string]bool, len(priorityPaths))
	for _, path := range priorityPaths {
		inPriority[path] = true
	}
	normalPaths = lo.Filter(normalPaths, func(path string, _ int) bool { return !inPriority[path] })

	results, agg := p.Dispatcher.DispatchPriority(ctx, req.Pipeline, priorityPaths, normalPaths)
	return results, agg, nil
}

// Archive moves every regular file under sourceRoot last modified
// before the cutoff (now - olderThan) into mirrorRoot, preserving the
// path relative to sourceRoot.
func Archive(sourceRoot, mirrorRoot string, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return errs.New(errs.KindIOFailure, "stat archival candidate "+path, err)
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		rel, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			return errs.New(errs.KindIOFailure, "computing archival relative path for "+path, err)
		}
		dest := filepath.Join(mirrorRoot, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errs.New(errs.KindIOFailure, "creating archival directory for "+dest, err)
		}
		if err := moveFile(path, dest); err != nil {
			return errs.New(errs.KindIOFailure, "archiving "+path, err)
		}
		return nil
	})
}

// Cleanup deletes every top-level (non-recursive) regular file in dir
// last modified before the cutoff (now - olderThan).
func Cleanup(dir string, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.New(errs.KindIOFailure, "reading cleanup directory "+dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return errs.New(errs.KindIOFailure, "stat cleanup candidate "+entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return errs.New(errs.KindIOFailure, "removing "+path, err)
		}
	}
	return nil
}

// moveFile renames src to dst, falling back to copy-then-remove when
// they live on different devices (os.Rename's EXDEV case).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
