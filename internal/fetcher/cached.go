package fetcher

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/model"
)

// ProfileCache is the storage behind CachedFetcher.
type ProfileCache interface {
	Get(username string) (*model.Profile, bool, error)
	Put(username string, p *model.Profile) error
}

// CachedFetcher serves snapshots from a cache and falls through to the
// wrapped Fetcher on a miss. Cache failures are logged and never fail a fetch.
type CachedFetcher struct {
	next    Fetcher
	cache   ProfileCache
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

var _ Fetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps next with cache.
func NewCachedFetcher(next Fetcher, cache ProfileCache, logger zerolog.Logger, m *metrics.Metrics) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, logger: logger, metrics: m}
}

func (f *CachedFetcher) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	p, ok, err := f.cache.Get(username)
	if err != nil {
		f.logger.Warn().Err(err).Str("username", username).Msg("profile cache read failed")
	}
	f.metrics.IncrementCache(ok)
	if ok {
		return p, nil
	}

	p, err = f.next.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	// Partial snapshots are not cached; the next lookup retries the walk.
	if p.DataComplete {
		if err := f.cache.Put(username, p); err != nil {
			f.logger.Warn().Err(err).Str("username", username).Msg("profile cache write failed")
		}
	}
	return p, nil
}
