package sqlite

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	profileLoadLimit = 5 * time.Second
)

type cachedProfile struct {
	profile  port.StoreProfile
	loadedAt time.Time
}

// CachedDirectory keeps store profiles in memory for ttl and collapses
// concurrent loads of the same store into one query. Staff lookups are not
// cached since they drive notifications.
type CachedDirectory struct {
	next  port.StoreDirectory
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu       sync.RWMutex
	profiles map[int64]cachedProfile
	// generations counts invalidations per store; a load only fills the
	// cache if no invalidation happened while it ran.
	generations map[int64]uint64
}

var (
	_ port.StoreDirectory     = (*CachedDirectory)(nil)
	_ port.ProfileInvalidator = (*CachedDirectory)(nil)
)

func NewCachedDirectory(next port.StoreDirectory, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedDirectory{
		next:        next,
		ttl:         ttl,
		now:         time.Now,
		profiles:    make(map[int64]cachedProfile),
		generations: make(map[int64]uint64),
	}
}

func (c *CachedDirectory) StoreProfile(ctx context.Context, storeID int64) (port.StoreProfile, error) {
	if p, ok := c.lookup(storeID); ok {
		return p, nil
	}
	v, err, _ := c.group.Do(strconv.FormatInt(storeID, 10), func() (any, error) {
		if p, ok := c.lookup(storeID); ok {
			return p, nil
		}
		c.mu.RLock()
		gen := c.generations[storeID]
		c.mu.RUnlock()

		// Collapsed callers share this load, so it must outlive any one of them.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileLoadLimit)
		defer cancel()
		p, err := c.next.StoreProfile(loadCtx, storeID)
		if err != nil {
			return port.StoreProfile{}, err
		}
		c.mu.Lock()
		if c.generations[storeID] == gen {
			c.profiles[storeID] = cachedProfile{profile: p, loadedAt: c.now()}
		}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return port.StoreProfile{}, err
	}
	return v.(port.StoreProfile), nil
}

func (c *CachedDirectory) lookup(storeID int64) (port.StoreProfile, bool) {
	c.mu.RLock()
	entry, ok := c.profiles[storeID]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.loadedAt) >= c.ttl {
		return port.StoreProfile{}, false
	}
	return entry.profile, true
}

// Invalidate drops the cached profile for storeID.
func (c *CachedDirectory) Invalidate(storeID int64) {
	c.mu.Lock()
	delete(c.profiles, storeID)
	c.generations[storeID]++
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(storeID, 10))
}

func (c *CachedDirectory) ActiveEmployees(ctx context.Context, storeID int64) ([]port.StaffMember, error) {
	return c.next.ActiveEmployees(ctx, storeID)
}

func (c *CachedDirectory) Managers(ctx context.Context, storeID int64) ([]port.StaffMember, error) {
	return c.next.Managers(ctx, storeID)
}
