// Package cache stores recently fetched profile snapshots in BoltDB so
// repeat lookups within the TTL skip the platform API.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ppiankov/vetter/internal/model"
)

// BucketProfiles stores snapshots keyed by lowercase username.
var BucketProfiles = []byte("profiles")

// Options configures the cache.
type Options struct {
	// Path to the database file. Parent directories are created if needed.
	Path string

	// TTL is how long a snapshot stays valid. If zero, 10 minutes.
	TTL time.Duration

	// Timeout for obtaining the file lock. If zero, 5 seconds.
	Timeout time.Duration

	// Now is the clock used for expiry. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the stock cache settings.
func DefaultOptions() Options {
	return Options{
		Path:    "cache.db",
		TTL:     10 * time.Minute,
		Timeout: 5 * time.Second,
	}
}

type entry struct {
	StoredAt time.Time      `json:"stored_at"`
	Profile  *model.Profile `json:"profile"`
}

// Cache is a TTL snapshot cache.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates or opens the cache database.
func Open(opts Options) (*Cache, error) {
	def := DefaultOptions()
	if opts.Path == "" {
		opts.Path = def.Path
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(BucketProfiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", BucketProfiles, err)
	}

	return &Cache{db: db, ttl: opts.TTL, now: opts.Now}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func key(username string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(username)))
}

// Get returns the cached snapshot for username. Expired or undecodable
// entries are reported as misses.
func (c *Cache) Get(username string) (*model.Profile, bool, error) {
	var e entry
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketProfiles).Get(key(username))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		found = e.Profile != nil
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found || c.expired(e.StoredAt) {
		return nil, false, nil
	}
	return e.Profile, true, nil
}

// Put stores a snapshot for username.
func (c *Cache) Put(username string, p *model.Profile) error {
	if p == nil {
		return fmt.Errorf("cache: nil profile")
	}
	data, err := json.Marshal(entry{StoredAt: c.now().UTC(), Profile: p})
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketProfiles).Put(key(username), data)
	})
}

// Purge deletes every entry that has expired at now and returns how many
// were removed.
func (c *Cache) Purge(now time.Time) (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketProfiles)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil || now.Sub(e.StoredAt) >= c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Clear deletes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		removed = tx.Bucket(BucketProfiles).Stats().KeyN
		if err := tx.DeleteBucket(BucketProfiles); err != nil {
			return err
		}
		_, err := tx.CreateBucket(BucketProfiles)
		return err
	})
	return removed, err
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(BucketProfiles).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *Cache) expired(storedAt time.Time) bool {
	return c.now().Sub(storedAt) >= c.ttl
}
