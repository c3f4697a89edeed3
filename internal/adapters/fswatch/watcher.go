package fswatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

// Handler is called once per settled file.
type Handler func(ctx context.Context, path string) error

type Config struct {
	Dir         string
	Debounce    time.Duration
	InitialScan bool
}

// Watcher feeds supported files dropped into a single directory to a handler
// once they stop changing for the debounce window.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if handler == nil {
		return nil, errors.New("watch handler is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{cfg: cfg, handler: handler, logger: logger}, nil
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.logger.Info("watcher.start", "dir", w.cfg.Dir, "debounce_ms", w.cfg.Debounce.Milliseconds())

	work := make(chan string, 256)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range work {
			w.handle(ctx, path)
		}
	}()
	defer func() {
		close(work)
		wg.Wait()
	}()

	pending := newDebouncer(w.cfg.Debounce)
	if w.cfg.InitialScan {
		existing, err := scanDir(w.cfg.Dir)
		if err != nil {
			w.logger.Warn("watcher.initial_scan_failed", "dir", w.cfg.Dir, "error", err)
		}
		now := time.Now()
		for _, path := range existing {
			pending.touch(path, now)
		}
	}

	tick := w.cfg.Debounce / 2
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher.stop", "dir", w.cfg.Dir)
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if relevant(ev) {
				pending.touch(ev.Name, time.Now())
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher.error", "dir", w.cfg.Dir, "error", err)
		case now := <-ticker.C:
			for _, path := range pending.due(now) {
				select {
				case work <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if err := w.handler(ctx, path); err != nil {
		w.logger.Warn("watcher.handle_failed", "path", path, "error", err)
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if isHidden(ev.Name) {
		return false
	}
	_, ok := domain.DetectType(ev.Name)
	return ok
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return len(base) > 0 && base[0] == '.'
}

func scanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		if _, ok := domain.DetectType(entry.Name()); ok {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out, nil
}

// debouncer coalesces bursts of events per path.
type debouncer struct {
	window time.Duration
	seen   map[string]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, seen: make(map[string]time.Time)}
}

func (d *debouncer) touch(path string, at time.Time) {
	d.seen[path] = at
}

// due pops paths that have been quiet for the whole window, sorted by name.
func (d *debouncer) due(now time.Time) []string {
	var out []string
	for path, at := range d.seen {
		if now.Sub(at) >= d.window {
			out = append(out, path)
			delete(d.seen, path)
		}
	}
	sort.Strings(out)
	return out
}
