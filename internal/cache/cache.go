// Package cache implements the on-disk lookaside cache shared by all
// upstream fetches. Entries are flat files named
// <namespace>_<md5(key)>.cache so a cache volume written by earlier
// deployments stays readable. The filesystem is authoritative: there is
// no in-memory layer, and entry age is the file mtime.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Namespace string

const (
	NSContent  Namespace = "content"
	NSPagedata Namespace = "pagedata"
	NSSubpages Namespace = "subpages"
	NSImages   Namespace = "images"
)

const entrySuffix = ".cache"

type FileCache struct {
	dir  string
	ttls map[Namespace]time.Duration
}

func New(dir string, ttls map[Namespace]time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	copied := make(map[Namespace]time.Duration, len(ttls))
	for ns, ttl := range ttls {
		copied[ns] = ttl
	}
	return &FileCache{dir: dir, ttls: copied}, nil
}

func (c *FileCache) Dir() string { return c.dir }

// TTL returns the configured lifetime for a namespace; zero means
// entries in that namespace never count as fresh.
func (c *FileCache) TTL(ns Namespace) time.Duration { return c.ttls[ns] }

func (c *FileCache) entryPath(ns Namespace, key string) string {
	sum := md5.Sum([]byte(key))
	name := string(ns) + "_" + hex.EncodeToString(sum[:]) + entrySuffix
	return filepath.Join(c.dir, name)
}

// Get returns the stored bytes for key if the entry exists and is
// younger than the namespace TTL. The payload is opaque: callers decide
// whether it decodes, and treat garbage as a miss.
func (c *FileCache) Get(ns Namespace, key string) ([]byte, bool) {
	path := c.entryPath(ns, key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	ttl := c.ttls[ns]
	if ttl <= 0 || time.Since(info.ModTime()) >= ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// GetStale returns the stored bytes for key regardless of age. Callers
// use it as a last resort when the upstream refetch for an expired
// entry fails.
func (c *FileCache) GetStale(ns Namespace, key string) ([]byte, bool) {
	data, err := os.ReadFile(c.entryPath(ns, key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key. The write is atomic (temp file then
// rename), so concurrent readers never see a partial payload. Errors
// are returned for logging only; callers proceed as if no cache exists.
func (c *FileCache) Put(ns Namespace, key string, data []byte) error {
	return writeFileAtomic(c.entryPath(ns, key), data, 0o644)
}

// Delete removes an entry. Used when a cached payload turns out to be
// corrupt.
func (c *FileCache) Delete(ns Namespace, key string) {
	_ = os.Remove(c.entryPath(ns, key))
}

// Sweep deletes every cache entry older than maxAge and reports how
// many were removed. Files without the cache suffix are left alone. A
// missing directory counts as nothing to do, not an error.
func (c *FileCache) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	deleted := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), entrySuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if os.Remove(filepath.Join(c.dir, entry.Name())) == nil {
			deleted++
		}
	}
	return deleted
}
