package linkage

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/probate-link/internal/model"
)

var acctRE = regexp.MustCompile(`(?i)acct=(\d+)`)

// AccountFromURL extracts the account number from a detail URL, or "".
func AccountFromURL(u string) string {
	if m := acctRE.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// CacheKeys returns the aliases a detail reference is known by: the
// account in its URL, then its listed account.
func CacheKeys(ref model.DetailRef) []string {
	return compactKeys([]string{AccountFromURL(ref.URL), ref.Account})
}

type cacheEntry struct {
	detail *model.CandidateDetail
	err    error
}

// DetailCache memoizes fetched candidate details for one run. Every alias
// of an account points at the same entry, entries are never replaced, and
// at most one fetch per account is in flight at a time, whichever alias
// the caller knows it by.
type DetailCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	flights map[string]string // alias -> in-flight group key
	group   singleflight.Group
	fetches atomic.Int64
}

// NewDetailCache creates an empty cache.
func NewDetailCache() *DetailCache {
	return &DetailCache{
		entries: make(map[string]*cacheEntry),
		flights: make(map[string]string),
	}
}

// GetOrFetch returns the detail cached under any of keys, or calls fetch
// and caches its result under every key plus the fetched account. A fetch
// that failed because ctx ended is not cached. With no usable key the
// fetch runs uncached.
func (c *DetailCache) GetOrFetch(ctx context.Context, keys []string, fetch func(ctx context.Context) (*model.CandidateDetail, error)) (*model.CandidateDetail, error) {
	keys = compactKeys(keys)
	if len(keys) == 0 {
		c.fetches.Add(1)
		return fetch(ctx)
	}
	if e, ok := c.lookup(keys); ok {
		return e.detail, e.err
	}

	v, _, _ := c.group.Do(c.flightKey(keys), func() (any, error) {
		if e, ok := c.lookup(keys); ok {
			return e, nil
		}
		c.fetches.Add(1)
		d, err := fetch(ctx)
		e := &cacheEntry{detail: d, err: err}
		if err == nil || ctx.Err() == nil {
			c.store(keys, e)
		}
		return e, nil
	})
	e := v.(*cacheEntry)
	return e.detail, e.err
}

// Get returns the successfully fetched detail stored under key.
func (c *DetailCache) Get(key string) (*model.CandidateDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.err != nil {
		return nil, false
	}
	return e.detail, true
}

// Len returns the number of keys, aliases included.
func (c *DetailCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetches returns how many times a fetch function has been invoked.
func (c *DetailCache) Fetches() int {
	return int(c.fetches.Load())
}

func (c *DetailCache) lookup(keys []string) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			return e, true
		}
	}
	return nil, false
}

// flightKey returns the singleflight key shared by every alias in keys.
// The first alias already bound to a key wins; the remaining aliases are
// bound to it so later callers that only know one of them join the same
// flight.
func (c *DetailCache) flightKey(keys []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := keys[0]
	for _, k := range keys {
		if bound, ok := c.flights[k]; ok {
			key = bound
			break
		}
	}
	for _, k := range keys {
		if _, ok := c.flights[k]; !ok {
			c.flights[k] = key
		}
	}
	return key
}

func (c *DetailCache) store(keys []string, e *cacheEntry) {
	if e.detail != nil && e.detail.Account != "" {
		keys = append(keys, e.detail.Account)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, exists := c.entries[k]; !exists {
			c.entries[k] = e
		}
	}
}

func compactKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
