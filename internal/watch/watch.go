// Package watch triggers a callback when files below a set of directories change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pagepress/pagepress/internal/logfields"
)

// DefaultDebounce is the quiet period after the last event before the callback runs.
const DefaultDebounce = 300 * time.Millisecond

// Watcher coalesces filesystem events into calls of OnChange. Calls never overlap; events
// arriving while the callback runs schedule exactly one more call.
type Watcher struct {
	Dirs []string
	// Ignore lists directories whose events are dropped, typically the output directory.
	Ignore   []string
	Debounce time.Duration
	OnChange func(ctx context.Context)
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fw.Close() }()

	ignore := make([]string, 0, len(w.Ignore))
	for _, d := range w.Ignore {
		if abs, err := filepath.Abs(d); err == nil {
			ignore = append(ignore, abs)
		}
	}
	for _, d := range w.Dirs {
		if err := addDirsRecursive(fw, d, ignore); err != nil {
			return err
		}
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	requests := make(chan struct{}, 1)
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case requests <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-requests:
				w.OnChange(ctx)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(ev.Name, ignore) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = addDirsRecursive(fw, ev.Name, ignore)
				}
			}
			slog.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			trigger()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func addDirsRecursive(fw *fsnotify.Watcher, root string, ignore []string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (strings.HasPrefix(d.Name(), ".") || isIgnored(p, ignore)) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			slog.Warn("Watch add failed", logfields.Path(p), logfields.Error(err))
		}
		return nil
	})
}

func isIgnored(p string, ignore []string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, d := range ignore {
		if abs == d || strings.HasPrefix(abs, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// shouldIgnoreEvent drops hidden, editor swap and temporary files.
func shouldIgnoreEvent(p string, ignore []string) bool {
	base := filepath.Base(p)
	switch {
	case strings.HasPrefix(base, "."),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == "Thumbs.db":
		return true
	}
	return isIgnored(p, ignore)
}
