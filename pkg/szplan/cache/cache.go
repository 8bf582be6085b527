// Package cache persists probed capability snapshots in a Badger database so
// short-lived commands can skip re-probing devices.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// DefaultRetention is how long Badger keeps a snapshot before expiring it.
const DefaultRetention = 7 * 24 * time.Hour

// Cache stores capability snapshots keyed by host and runtime.
type Cache struct {
	store     *Store
	retention time.Duration
	now       func() time.Time
}

// Open opens or creates a cache at the given path. An empty path opens an
// in-memory cache.
func Open(path string) (*Cache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	return &Cache{store: store, retention: DefaultRetention, now: time.Now}, nil
}

// SetRetention changes the expiry of snapshots saved afterwards. Zero keeps
// them until cleared.
func (c *Cache) SetRetention(d time.Duration) {
	c.retention = d
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Load returns the snapshot stored under key, or ErrNotFound.
func (c *Cache) Load(key string) (*types.Capabilities, error) {
	raw, err := c.store.Get(MakeKey(key))
	if err != nil {
		return nil, err
	}
	var e entry
	if err := e.decode(raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &e.Caps, nil
}

// Save stores caps under key, replacing any previous snapshot.
func (c *Cache) Save(key string, caps *types.Capabilities) error {
	if caps == nil {
		return errors.New("nil capabilities")
	}
	e := entry{Version: FormatVersion, StoredAt: c.now(), Caps: *caps}
	raw, err := e.encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Put(MakeKey(key), raw, c.retention)
}

// Entry summarizes one stored snapshot.
type Entry struct {
	Key      string    `json:"key" yaml:"key"`
	Runtime  string    `json:"runtime" yaml:"runtime"`
	Devices  int       `json:"devices" yaml:"devices"`
	ProbedAt time.Time `json:"probed_at" yaml:"probed_at"`
	StoredAt time.Time `json:"stored_at" yaml:"stored_at"`
}

// Entries lists stored snapshots sorted by key. Undecodable entries are
// skipped.
func (c *Cache) Entries() ([]Entry, error) {
	var out []Entry
	err := c.store.Scan(keyPrefix(), func(k, v []byte) error {
		key, ok := ParseKey(k)
		if !ok {
			return nil
		}
		var e entry
		if err := e.decode(v); err != nil {
			return nil
		}
		out = append(out, Entry{
			Key:      key,
			Runtime:  e.Caps.Runtime,
			Devices:  len(e.Caps.Devices),
			ProbedAt: e.Caps.ProbedAt,
			StoredAt: e.StoredAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Stats describes the cache contents.
type Stats struct {
	Entries  int   `json:"entries" yaml:"entries"`
	LSMBytes int64 `json:"lsm_bytes" yaml:"lsm_bytes"`
	LogBytes int64 `json:"log_bytes" yaml:"log_bytes"`
}

// Stats returns entry count and on-disk size.
func (c *Cache) Stats() (Stats, error) {
	entries, err := c.Entries()
	if err != nil {
		return Stats{}, err
	}
	lsm, vlog := c.store.Size()
	return Stats{Entries: len(entries), LSMBytes: lsm, LogBytes: vlog}, nil
}

// Delete removes the snapshot stored under key.
func (c *Cache) Delete(key string) error {
	return c.store.Delete(MakeKey(key))
}

// Clear removes every snapshot and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	return c.store.DeletePrefix(keyPrefix())
}
