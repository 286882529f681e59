package repository

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fabula/internal/logging"
)

// ContentWatcher watches a content directory and re-indexes aspect files as
// they change, so a running agent sees repository edits without a restart.
type ContentWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	indexer  *Indexer
	dir      string
	pending  map[string]time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	log      *zap.Logger
}

// NewContentWatcher creates a watcher over dir feeding the given indexer.
func NewContentWatcher(dir string, indexer *Indexer) (*ContentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ContentWatcher{
		watcher:  w,
		indexer:  indexer,
		dir:      dir,
		pending:  make(map[string]time.Time),
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      logging.L(logging.CategoryIndex),
	}, nil
}

// Start begins watching. Non-blocking; events are handled on a goroutine.
func (cw *ContentWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if err := cw.watcher.Add(cw.dir); err != nil {
		return err
	}
	cw.log.Info("watching content directory", zap.String("dir", cw.dir))

	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (cw *ContentWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh
	_ = cw.watcher.Close()
}

func (cw *ContentWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Error("watch error", zap.Error(err))
		case <-ticker.C:
			cw.flush(ctx)
		}
	}
}

func (cw *ContentWatcher) handleEvent(event fsnotify.Event) {
	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".yaml" && ext != ".yml" {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	cw.mu.Lock()
	cw.pending[event.Name] = time.Now()
	cw.mu.Unlock()
}

// flush re-indexes files whose last event is older than the debounce
// window, batching rapid saves into one pass.
func (cw *ContentWatcher) flush(ctx context.Context) {
	cw.mu.Lock()
	var due []string
	now := time.Now()
	for path, at := range cw.pending {
		if now.Sub(at) >= cw.debounce {
			due = append(due, path)
			delete(cw.pending, path)
		}
	}
	cw.mu.Unlock()

	for _, path := range due {
		count, err := cw.indexer.IndexFile(ctx, path)
		if err != nil {
			cw.log.Error("re-index failed", zap.String("file", path), zap.Error(err))
			continue
		}
		cw.log.Info("re-indexed content file", zap.String("file", path), zap.Int("elements", count))
	}
}
