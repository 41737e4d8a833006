package secrets

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"go.uber.org/atomic"
)

// CachePolicy holds existence flags. Implementations must be safe for
// concurrent use.
type CachePolicy[K comparable] interface {
	Load(key K) (exists bool, ok bool)
	Store(key K, exists bool)
	Len() int
}

// UnboundedPolicy never evicts. Secrets are immutable once written, so an
// entry never goes stale, but the cache grows with every key ever checked.
type UnboundedPolicy[K comparable] struct {
	m   sync.Map
	len atomic.Int64
}

// NewUnboundedPolicy returns an empty UnboundedPolicy.
func NewUnboundedPolicy[K comparable]() *UnboundedPolicy[K] {
	return &UnboundedPolicy[K]{}
}

func (p *UnboundedPolicy[K]) Load(key K) (bool, bool) {
	v, ok := p.m.Load(key)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

func (p *UnboundedPolicy[K]) Store(key K, exists bool) {
	if _, loaded := p.m.Swap(key, exists); !loaded {
		p.len.Inc()
	}
}

func (p *UnboundedPolicy[K]) Len() int {
	return int(p.len.Load())
}

// LRUPolicy keeps at most size entries, evicting the least recently used.
type LRUPolicy[K comparable] struct {
	cache *lru.Cache[K, bool]
}

// NewLRUPolicy returns an LRUPolicy holding at most size entries.
func NewLRUPolicy[K comparable](size int) (*LRUPolicy[K], error) {
	cache, err := lru.New[K, bool](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &LRUPolicy[K]{cache: cache}, nil
}

func (p *LRUPolicy[K]) Load(key K) (bool, bool) {
	return p.cache.Get(key)
}

func (p *LRUPolicy[K]) Store(key K, exists bool) {
	p.cache.Add(key, exists)
}

func (p *LRUPolicy[K]) Len() int {
	return p.cache.Len()
}

// ExistenceCache memoizes whether a secret exists. Secrets are write-once, so
// a cached true may refuse a write without asking the repository. A cached
// false never allows one: the repository's insert conflict decides.
type ExistenceCache[K interfaces.SecretKey] struct {
	policy CachePolicy[K]
	log    *slog.Logger
}

// NewExistenceCache wraps policy. A nil policy means NewUnboundedPolicy.
func NewExistenceCache[K interfaces.SecretKey](policy CachePolicy[K], log *slog.Logger) *ExistenceCache[K] {
	if policy == nil {
		policy = NewUnboundedPolicy[K]()
	}
	return &ExistenceCache[K]{policy: policy, log: log}
}

// Put records whether key exists. The zero key is ignored.
func (c *ExistenceCache[K]) Put(key K, exists bool) {
	var zero K
	if key == zero {
		c.log.Warn("Refusing to cache existence of an empty secret key")
		return
	}
	c.policy.Store(key, exists)
}

// Lookup returns the cached flag. ok is false when key was never cached,
// which is different from a cached false.
func (c *ExistenceCache[K]) Lookup(key K) (exists bool, ok bool) {
	return c.policy.Load(key)
}

// Len returns the number of cached entries.
func (c *ExistenceCache[K]) Len() int {
	return c.policy.Len()
}
