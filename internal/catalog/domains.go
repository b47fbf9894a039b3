package catalog

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/pkg/common"
)

// DomainCatalog interns normalized domain names and their derived
// parent domains.
type DomainCatalog struct {
	repo *store.DomainRepository
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*domainEntry
}

type domainEntry struct {
	id        int64
	parent    string
	lastTouch time.Time
}

func NewDomainCatalog(repo *store.DomainRepository, now func() time.Time) *DomainCatalog {
	if now == nil {
		now = time.Now
	}
	return &DomainCatalog{
		repo:    repo,
		now:     now,
		entries: make(map[string]*domainEntry),
	}
}

// NormalizeDomain lowercases, trims surrounding whitespace and a single
// trailing dot. Empty results and names containing separators or
// control characters are rejected.
func NormalizeDomain(input string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(input))
	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return "", common.ValidationError("domain cannot be empty")
	}
	for _, r := range d {
		if r == '/' || r == ':' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", common.ValidationError("domain contains invalid character")
		}
	}
	return d, nil
}

// ParentDomain derives the registrable parent using the two-label
// heuristic: names of two labels or fewer are their own parent,
// otherwise the last two labels are. Public-suffix rules are
// intentionally not consulted, so bbc.co.uk rolls up to co.uk.
func ParentDomain(fqdn string) string {
	labels := strings.Split(fqdn, ".")
	if len(labels) <= 2 {
		return fqdn
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// Resolve normalizes, derives the parent, and interns the domain
// atomically, returning (domainID, parent).
func (c *DomainCatalog) Resolve(ctx context.Context, input string) (int64, string, error) {
	fqdn, err := NormalizeDomain(input)
	if err != nil {
		return 0, "", err
	}
	parent := ParentDomain(fqdn)
	now := c.now().UTC().Truncate(time.Second)

	c.mu.Lock()
	entry, ok := c.entries[fqdn]
	if ok && now.Sub(entry.lastTouch) < touchDebounce {
		id, p := entry.id, entry.parent
		c.mu.Unlock()
		return id, p, nil
	}
	c.mu.Unlock()

	id, err := c.repo.Upsert(ctx, fqdn, parent, now)
	if err != nil {
		return 0, "", err
	}

	c.mu.Lock()
	c.entries[fqdn] = &domainEntry{id: id, parent: parent, lastTouch: now}
	c.mu.Unlock()
	return id, parent, nil
}
