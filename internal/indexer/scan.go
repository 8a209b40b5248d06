package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/parser"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/telemetry"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// DocumentsDirName is the per-base folder evaluated by ScanFolder
const DocumentsDirName = "documents"

// Failure records one file a scan could not index
type Failure struct {
	Path string
	Err  error
}

// ScanResult summarizes a folder scan
type ScanResult struct {
	// Documents holds every successfully indexed or skipped document, in
	// file order
	Documents []*storage.Document
	Failures  []Failure
	Skipped   int
	Duration  time.Duration
}

// fileOutcome is the result slot of one file in a scan
type fileOutcome struct {
	doc     *storage.Document
	skipped bool
	err     error
}

// DocumentsDir returns <data_dir>/<base>/documents
func (idx *Indexer) DocumentsDir(base string) string {
	return filepath.Join(idx.cfg.DataDir, base, DocumentsDirName)
}

func (idx *Indexer) scanLock(base string) *IndexLock {
	l, _ := idx.scanLocks.LoadOrStore(base, &IndexLock{})
	return l.(*IndexLock)
}

// ScanFolder indexes every file in the base's documents directory. A file
// that fails is reported and the scan moves on; cancellation stops the scan
// and returns what finished so far together with the context error.
func (idx *Indexer) ScanFolder(ctx context.Context, base string, progress ProgressFunc) (*ScanResult, error) {
	if err := config.ValidateBaseName(base); err != nil {
		return nil, err
	}

	lock := idx.scanLock(base)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("%w: base %s", types.ErrIndexingInProgress, base)
	}
	defer lock.Release()

	ctx, span := telemetry.Tracer().Start(ctx, "indexer.ScanFolder", trace.WithAttributes(attribute.String("base", base)))
	defer span.End()

	start := time.Now()
	dir := idx.DocumentsDir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	files, err := idx.listFiles(dir)
	if err != nil {
		return nil, err
	}
	total := len(files)
	span.SetAttributes(attribute.Int("files", total))

	if total == 0 {
		progress.report(fmt.Sprintf("Found 0 file(s) to evaluate in %s", dir), fracDone)
		return &ScanResult{Documents: []*storage.Document{}, Duration: time.Since(start)}, nil
	}
	progress.report(fmt.Sprintf("Found %d file(s) to evaluate in %s", total, dir), fracStart)

	var outcomes []fileOutcome
	if idx.cfg.Workers > 1 && total > 1 {
		outcomes = idx.scanConcurrent(ctx, base, files, progress)
	} else {
		outcomes = idx.scanSequential(ctx, base, files, progress)
	}

	result := &ScanResult{Documents: make([]*storage.Document, 0, total)}
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			result.Failures = append(result.Failures, Failure{Path: files[i], Err: o.err})
		case o.doc != nil:
			result.Documents = append(result.Documents, o.doc)
			if o.skipped {
				result.Skipped++
			}
		}
	}
	result.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return result, err
	}

	logger.Info("folder scan complete",
		"base", base,
		"files", total,
		"indexed", len(result.Documents)-result.Skipped,
		"skipped", result.Skipped,
		"failed", len(result.Failures),
		"duration", result.Duration.Round(time.Millisecond).String())
	progress.report("Folder scan complete", fracDone)
	return result, nil
}

// listFiles returns the regular, non-hidden files of dir in lexicographic
// order. With SupportedOnly, unsupported extensions are left out.
func (idx *Indexer) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if idx.cfg.SupportedOnly && !parser.IsSupported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func (idx *Indexer) scanSequential(ctx context.Context, base string, files []string, progress ProgressFunc) []fileOutcome {
	total := len(files)
	outcomes := make([]fileOutcome, total)

	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		name := filepath.Base(path)
		progress.report(fmt.Sprintf("Indexing %s (%d/%d)", name, i+1, total), float64(i)/float64(total))

		doc, skipped, err := idx.indexFile(ctx, base, path, progress.scaled(i, total))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			progress.reportUnknown(failureMessage(base, path, err))
		}
		outcomes[i] = fileOutcome{doc: doc, skipped: skipped, err: err}
	}
	return outcomes
}

// scanConcurrent indexes up to Workers files at a time. Nested file events
// are not forwarded because runs interleave; progress advances per
// completed file.
func (idx *Indexer) scanConcurrent(ctx context.Context, base string, files []string, progress ProgressFunc) []fileOutcome {
	total := len(files)
	outcomes := make([]fileOutcome, total)

	var (
		mu        sync.Mutex
		completed int
	)

	sem := semaphore.NewWeighted(int64(idx.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)

	for i, path := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			mu.Lock()
			progress.report(fmt.Sprintf("Indexing %s (%d/%d)", filepath.Base(path), i+1, total),
				float64(completed)/float64(total))
			mu.Unlock()

			doc, skipped, err := idx.indexFile(gctx, base, path, nil)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = fileOutcome{doc: doc, skipped: skipped, err: err}

			mu.Lock()
			defer mu.Unlock()
			completed++
			if err != nil {
				progress.reportUnknown(failureMessage(base, path, err))
			}
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// failureMessage logs a per-file failure and returns its progress message
func failureMessage(base, path string, err error) string {
	logger.Warn("failed to index document", "base", base, "path", path, "error", err)
	return fmt.Sprintf("Failed to index %s: %v", filepath.Base(path), err)
}
