package dashboard

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/refdata"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the reference file and publishes a new snapshot when it
// changes. A file that fails to load leaves the current snapshot in place.
type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	holder  *refdata.Holder
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex // serializes reloads
}

// NewReloader creates a watcher for path. The parent directory is watched
// so that editors replacing the file via rename are still picked up.
func NewReloader(path string, holder *refdata.Holder, logger zerolog.Logger, m *metrics.Metrics) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}
	return &Reloader{
		watcher: watcher,
		path:    abs,
		holder:  holder,
		logger:  logger,
		metrics: m,
	}, nil
}

// Reload loads the reference file and swaps it in. An unchanged hash is a
// no-op.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, hash, err := refdata.LoadWithHash(r.path)
	if err != nil {
		r.metrics.IncrementReload(false)
		return err
	}
	if hash == r.holder.Hash() {
		return nil
	}
	r.holder.Swap(rd, hash)
	r.metrics.IncrementReload(true)
	return nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := r.Reload(); err != nil {
					r.logger.Error().Err(err).Str("path", r.path).Msg("reference reload failed, keeping previous data")
					return
				}
				r.logger.Info().Str("path", r.path).Str("hash", r.holder.Hash()).Msg("reference data reloaded")
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}
