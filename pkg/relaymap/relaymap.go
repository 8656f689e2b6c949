// Package relaymap implements the in-memory peer registry behind the rendezvous service.
package relaymap

import (
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

const (
	MaxRelayCount = 3000
	TimeToLive    = 10 * time.Minute
)

var (
	ErrCapacityExceeded = errors.New("relay map is full")
	ErrNotFound         = errors.New("peer not found")
)

// Record is a snapshot of a registered peer.
type Record[ID comparable] struct {
	ID            ID
	Addr          netip.AddrPort
	DiscoveryTime time.Time

	// WaitingFor is only meaningful while WaitingPunch is set.
	WaitingPunch bool
	WaitingFor   ID
}

// IsWaitingFor returns true if the record has asked to be matched with target.
func (r Record[ID]) IsWaitingFor(target ID) bool {
	return r.WaitingPunch && r.WaitingFor == target
}

type Option func(*config)

type config struct {
	clock    clock.Clock
	policy   AddrPolicy
	maxCount int
	ttl      time.Duration
}

func WithClock(c clock.Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

func WithPolicy(p AddrPolicy) Option {
	return func(cfg *config) { cfg.policy = p }
}

// WithMaxCount sets the capacity of the map. Values <= 0 are ignored.
func WithMaxCount(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxCount = n
		}
	}
}

// WithTTL sets how long a record may go without a refresh. Values <= 0 are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// Map holds one Record per peer.
// Reads share a lock, writes are exclusive. Records never leave the Map by reference.
// A record older than the TTL is invisible to every operation, but is only deleted by EvictExpired.
type Map[ID comparable] struct {
	clock    clock.Clock
	policy   AddrPolicy
	maxCount int
	ttl      time.Duration

	mu sync.RWMutex
	m  map[ID]*Record[ID]
}

func New[ID comparable](opts ...Option) *Map[ID] {
	cfg := config{
		clock:    clock.New(),
		policy:   DefaultPolicy(),
		maxCount: MaxRelayCount,
		ttl:      TimeToLive,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Map[ID]{
		clock:    cfg.clock,
		policy:   cfg.policy,
		maxCount: cfg.maxCount,
		ttl:      cfg.ttl,
		m:        make(map[ID]*Record[ID]),
	}
}

// Bind registers id at addr.
// Binding an id which is already present always succeeds: the timestamp is refreshed,
// the address is replaced only if the AddrPolicy allows it, and any wait state is kept.
// Binding a new id fails with ErrCapacityExceeded when the map is full of unexpired records.
// The returned Record is what the map holds after the call.
func (m *Map[ID]) Bind(id ID, addr netip.AddrPort) (Record[ID], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if r, exists := m.m[id]; exists {
		if m.isExpired(r, now) {
			*r = Record[ID]{ID: id, Addr: addr, DiscoveryTime: now}
			return *r, nil
		}
		if m.policy.MayOverwrite(r.Addr, addr) {
			r.Addr = addr
		}
		r.DiscoveryTime = now
		return *r, nil
	}
	if len(m.m) >= m.maxCount && m.evictExpired(now) == 0 {
		return Record[ID]{}, ErrCapacityExceeded
	}
	r := &Record[ID]{ID: id, Addr: addr, DiscoveryTime: now}
	m.m[id] = r
	return *r, nil
}

func (m *Map[ID]) Lookup(id ID) (Record[ID], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, exists := m.get(id)
	if !exists {
		return Record[ID]{}, false
	}
	return *r, true
}

func (m *Map[ID]) Contains(id ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.get(id)
	return exists
}

// Mutate replaces the record for id with fn applied to it.
// The ID of the record cannot be changed by fn.
func (m *Map[ID]) Mutate(id ID, fn func(Record[ID]) Record[ID]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, exists := m.get(id)
	if !exists {
		return ErrNotFound
	}
	next := fn(*r)
	next.ID = id
	*r = next
	return nil
}

func (m *Map[ID]) RefreshTimestamp(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, exists := m.get(id)
	if !exists {
		return ErrNotFound
	}
	r.DiscoveryTime = m.clock.Now()
	return nil
}

// EvictExpired deletes every record last refreshed more than the TTL before now.
// It returns the number of records deleted.
func (m *Map[ID]) EvictExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictExpired(now)
}

// evictExpired must be called with mu held.
func (m *Map[ID]) evictExpired(now time.Time) int {
	var count int
	for id, r := range m.m {
		if m.isExpired(r, now) {
			delete(m.m, id)
			count++
		}
	}
	return count
}

// Scan returns a record matching pred, if there is one.
// When several records match, which one is returned is unspecified.
func (m *Map[ID]) Scan(pred func(Record[ID]) bool) (Record[ID], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.clock.Now()
	for _, r := range m.m {
		if m.isExpired(r, now) {
			continue
		}
		if pred(*r) {
			return *r, true
		}
	}
	return Record[ID]{}, false
}

// Len returns the number of records held, including expired records which have not been evicted.
func (m *Map[ID]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

func (m *Map[ID]) Now() time.Time {
	return m.clock.Now()
}

func (m *Map[ID]) TTL() time.Duration {
	return m.ttl
}

func (m *Map[ID]) Policy() AddrPolicy {
	return m.policy
}

// get must be called with mu held.
func (m *Map[ID]) get(id ID) (*Record[ID], bool) {
	r, exists := m.m[id]
	if !exists || m.isExpired(r, m.clock.Now()) {
		return nil, false
	}
	return r, true
}

func (m *Map[ID]) isExpired(r *Record[ID], now time.Time) bool {
	return now.Sub(r.DiscoveryTime) > m.ttl
}
