package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
)

// touchDebounce bounds how often a cache hit flushes last_seen back to
// the store. The distinct-app population is small, so the cache itself
// is unbounded.
const touchDebounce = time.Minute

// AppCatalog interns (processName, bundleID) pairs into stable app ids.
type AppCatalog struct {
	repo *store.AppRepository
	now  func() time.Time

	mu      sync.Mutex
	entries map[appKey]*appEntry
}

type appKey struct {
	processName string
	bundleID    string
}

type appEntry struct {
	id        int64
	lastTouch time.Time
}

func NewAppCatalog(repo *store.AppRepository, now func() time.Time) *AppCatalog {
	if now == nil {
		now = time.Now
	}
	return &AppCatalog{
		repo:    repo,
		now:     now,
		entries: make(map[appKey]*appEntry),
	}
}

// Resolve returns the stable id for a process identity, creating the
// row on first sight. Cache hits advance last_seen at most once per
// debounce window.
func (c *AppCatalog) Resolve(ctx context.Context, processName, bundleID string) (int64, error) {
	if processName == "" {
		return 0, common.ValidationError("process name cannot be empty")
	}
	key := appKey{processName: processName, bundleID: bundleID}
	now := c.now().UTC().Truncate(time.Second)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && now.Sub(entry.lastTouch) < touchDebounce {
		id := entry.id
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	id, err := c.repo.Upsert(ctx, processName, bundleID, now)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[key] = &appEntry{id: id, lastTouch: now}
	c.mu.Unlock()
	return id, nil
}

// Size reports the number of cached identities.
func (c *AppCatalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
