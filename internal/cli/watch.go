package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/parser"
)

// DefaultDebounce is how long a file must stay quiet before it is indexed
const DefaultDebounce = 500 * time.Millisecond

var (
	watchDebounce time.Duration
	watchNoScan   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index a knowledge base as its documents change",
	Long: `Watches <data_dir>/<base>/documents and indexes files as they are created
or modified. Deleted files are removed from the index. Bursts of writes to one
file are coalesced by --debounce. A full scan runs first unless --no-scan is
set.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", DefaultDebounce, "quiet period before a changed file is indexed")
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "skip the initial scan")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	base, err := resolveBase(a)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if !watchNoScan {
		result, err := a.Indexer.ScanFolder(ctx, base, nil)
		if result != nil {
			printScanResult(cmd, a.Indexer.DocumentsDir(base), result)
		}
		if err != nil {
			return err
		}
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", a.Indexer.DocumentsDir(base))
	return newWatcher(a, base, watchDebounce, cmd.OutOrStdout()).run(ctx)
}

// watcher indexes files of one documents folder after they settle
type watcher struct {
	app      *app.App
	base     string
	dir      string
	debounce time.Duration

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func newWatcher(a *app.App, base string, debounce time.Duration, out io.Writer) *watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &watcher{
		app:      a,
		base:     base,
		dir:      a.Indexer.DocumentsDir(base),
		debounce: debounce,
		out:      out,
		pending:  make(map[string]*time.Timer),
	}
}

// run blocks until ctx is done, then waits for in-flight syncs
func (w *watcher) run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create documents directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logger.Info("watching documents", "base", w.base, "dir", w.dir, "debounce", w.debounce.String())

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "base", w.base, "error", err)
		}
	}
}

func (w *watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !parser.IsSupported(name) {
		return
	}
	logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.schedule(ctx, event.Name)
}

// schedule (re)starts the quiet timer of path
func (w *watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.sync(ctx, path)
	})
	w.pending[path] = t
}

// sync brings the index in line with the file's current state on disk
func (w *watcher) sync(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	name := filepath.Base(path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := w.app.Indexer.RemoveFile(ctx, w.base, path); err != nil {
			w.printf("failed to remove %s: %v\n", name, err)
			return
		}
		w.printf("removed %s\n", name)
		return
	}

	start := time.Now()
	doc, err := w.app.Indexer.IndexFile(ctx, w.base, path, nil)
	switch {
	case err != nil:
		w.printf("failed %s: %v\n", name, err)
	case doc.IndexedAt.Before(start):
		logger.Debug("file unchanged", "path", path)
	default:
		w.printf("indexed %s (%s)\n", name, time.Since(start).Round(time.Millisecond))
	}
}

// stop cancels pending timers and waits for running syncs
func (w *watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *watcher) printf(format string, args ...any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}
