package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// FileCache stores fetched documents on disk, one pair of files per URL:
// <key>.bin holds the raw bytes, <key>.json the metadata needed to detect
// an unchanged resource. Writes go through a temp file and rename so a
// crashed or concurrent write never leaves a torn entry.
type FileCache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-key write serialization
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *FileCache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Get returns the cached entry for a URL, if present.
func (c *FileCache) Get(url string) (*domain.FetchResult, bool, error) {
	key := cacheKey(url)

	meta, err := os.ReadFile(filepath.Join(c.dir, key+".json"))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache meta: %w", err)
	}

	var res domain.FetchResult
	if err := json.Unmarshal(meta, &res); err != nil {
		return nil, false, fmt.Errorf("decode cache meta: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, key+".bin"))
	if os.IsNotExist(err) {
		// Meta without data: treat as a miss, the entry is torn.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache data: %w", err)
	}

	res.Data = data
	res.FromCache = true
	return &res, true, nil
}

// Put writes an entry, serializing concurrent writes to the same URL.
func (c *FileCache) Put(res *domain.FetchResult) error {
	key := cacheKey(res.URL)
	l := c.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := c.writeAtomic(key+".bin", res.Data); err != nil {
		return err
	}

	meta, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode cache meta: %w", err)
	}
	return c.writeAtomic(key+".json", meta)
}

func (c *FileCache) writeAtomic(name string, data []byte) error {
	final := filepath.Join(c.dir, name)
	tmp, err := os.CreateTemp(c.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
