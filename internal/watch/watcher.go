package watch

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// RunFunc loads one source file. Invoked serially, never concurrently.
type RunFunc func(ctx context.Context, sourceFile string) error

// Watcher monitors the source directory for new CSV extracts and triggers
// an incremental load for each one.
type Watcher struct {
	dir string
	run RunFunc
}

func New(sourceDir string, run RunFunc) *Watcher {
	return &Watcher{dir: sourceDir, run: run}
}

// Start watches until ctx is cancelled. Loads run on the caller's
// goroutine so only one run is ever in flight.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	log.Printf("watching %s for new extracts", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-watcher.Events:
			if evt.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isExtract(evt.Name) {
				continue
			}
			log.Printf("new extract: %s", evt.Name)
			if err := w.run(ctx, evt.Name); err != nil {
				log.Printf("load %s: %v", evt.Name, err)
			}
		case err := <-watcher.Errors:
			log.Printf("watcher error: %v", err)
		}
	}
}

// Backfill loads the extracts already sitting in the directory.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.dir, "*.csv"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.run(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func isExtract(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
