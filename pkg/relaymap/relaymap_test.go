package relaymap

import (
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func newTestMap(t testing.TB, opts ...Option) (*Map[string], *clock.Mock) {
	clk := clock.NewMock()
	opts = append([]Option{WithClock(clk)}, opts...)
	return New[string](opts...), clk
}

func TestBindLookup(t *testing.T) {
	m, clk := newTestMap(t)
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	r, err := m.Bind("a", addr)
	require.NoError(t, err)
	require.Equal(t, addr, r.Addr)

	r, ok := m.Lookup("a")
	require.True(t, ok)
	require.Equal(t, "a", r.ID)
	require.Equal(t, addr, r.Addr)
	require.Equal(t, clk.Now(), r.DiscoveryTime)
	require.False(t, r.WaitingPunch)

	_, ok = m.Lookup("b")
	require.False(t, ok)
	require.True(t, m.Contains("a"))
	require.False(t, m.Contains("b"))
}

func TestRebindUpdates(t *testing.T) {
	m, clk := newTestMap(t)
	_, err := m.Bind("a", netip.MustParseAddrPort("1.2.3.4:1000"))
	require.NoError(t, err)
	require.NoError(t, m.Mutate("a", func(r Record[string]) Record[string] {
		r.WaitingPunch = true
		r.WaitingFor = "b"
		return r
	}))

	clk.Add(time.Minute)
	next := netip.MustParseAddrPort("5.6.7.8:2000")
	r, err := m.Bind("a", next)
	require.NoError(t, err)
	require.Equal(t, next, r.Addr)
	require.Equal(t, clk.Now(), r.DiscoveryTime)
	require.True(t, r.IsWaitingFor("b"), "rebinding should keep wait state")
	require.Equal(t, 1, m.Len())
}

func TestPlaceholderDoesNotOverwrite(t *testing.T) {
	m, clk := newTestMap(t, WithTTL(10*time.Minute))
	good := netip.MustParseAddrPort("1.2.3.4:1000")
	_, err := m.Bind("a", good)
	require.NoError(t, err)

	clk.Add(9 * time.Minute)
	r, err := m.Bind("a", DefaultPlaceholder)
	require.NoError(t, err)
	require.Equal(t, good, r.Addr)

	// the placeholder bind refreshed the timestamp, so the record outlives the original deadline.
	clk.Add(9 * time.Minute)
	require.Equal(t, 0, m.EvictExpired(clk.Now()))
	r, ok := m.Lookup("a")
	require.True(t, ok)
	require.Equal(t, good, r.Addr)
}

func TestPlaceholderReplacedByRealAddr(t *testing.T) {
	m, _ := newTestMap(t)
	_, err := m.Bind("a", DefaultPlaceholder)
	require.NoError(t, err)
	good := netip.MustParseAddrPort("1.2.3.4:1000")
	r, err := m.Bind("a", good)
	require.NoError(t, err)
	require.Equal(t, good, r.Addr)
}

func TestCapacity(t *testing.T) {
	const n = 10
	m, _ := newTestMap(t, WithMaxCount(n))
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	for i := 0; i < n; i++ {
		_, err := m.Bind(fmt.Sprint(i), addr)
		require.NoError(t, err)
	}
	_, err := m.Bind("new", addr)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	_, ok := m.Lookup("new")
	require.False(t, ok)

	// existing ids do not count against capacity
	_, err = m.Bind("0", netip.MustParseAddrPort("5.6.7.8:2000"))
	require.NoError(t, err)
	require.Equal(t, n, m.Len())
}

func TestCapacityReclaimsExpired(t *testing.T) {
	const n = 3
	m, clk := newTestMap(t, WithMaxCount(n))
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	for i := 0; i < n; i++ {
		_, err := m.Bind(fmt.Sprint(i), addr)
		require.NoError(t, err)
	}
	clk.Add(TimeToLive / 2)
	_, err := m.Bind("0", addr)
	require.NoError(t, err)
	clk.Add(TimeToLive/2 + time.Second)

	// "1" and "2" have expired, but nothing has swept them yet
	require.Equal(t, n, m.Len())
	_, err = m.Bind("new", addr)
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
	require.True(t, m.Contains("0"))
	require.True(t, m.Contains("new"))

	_, err = m.Bind("another", addr)
	require.NoError(t, err)
	_, err = m.Bind("full", addr)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestDefaultCapacity(t *testing.T) {
	m, _ := newTestMap(t)
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	for i := 0; i < MaxRelayCount; i++ {
		_, err := m.Bind(fmt.Sprint(i), addr)
		require.NoError(t, err)
	}
	_, err := m.Bind("one-too-many", addr)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestMutate(t *testing.T) {
	m, _ := newTestMap(t)
	require.ErrorIs(t, m.Mutate("a", func(r Record[string]) Record[string] { return r }), ErrNotFound)

	_, err := m.Bind("a", netip.MustParseAddrPort("1.2.3.4:1000"))
	require.NoError(t, err)
	require.NoError(t, m.Mutate("a", func(r Record[string]) Record[string] {
		r.ID = "changed"
		r.WaitingPunch = true
		r.WaitingFor = "b"
		return r
	}))
	r, ok := m.Lookup("a")
	require.True(t, ok)
	require.Equal(t, "a", r.ID)
	require.True(t, r.IsWaitingFor("b"))
	require.False(t, m.Contains("changed"))
}

func TestRefreshTimestamp(t *testing.T) {
	m, clk := newTestMap(t)
	require.ErrorIs(t, m.RefreshTimestamp("a"), ErrNotFound)

	_, err := m.Bind("a", netip.MustParseAddrPort("1.2.3.4:1000"))
	require.NoError(t, err)
	clk.Add(5 * time.Minute)
	require.NoError(t, m.RefreshTimestamp("a"))
	r, _ := m.Lookup("a")
	require.Equal(t, clk.Now(), r.DiscoveryTime)
}

func TestEvictExpired(t *testing.T) {
	m, clk := newTestMap(t)
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	_, err := m.Bind("old", addr)
	require.NoError(t, err)
	clk.Add(5 * time.Minute)
	_, err = m.Bind("young", addr)
	require.NoError(t, err)

	// exactly at the TTL a record is still alive
	clk.Add(5 * time.Minute)
	require.Equal(t, 0, m.EvictExpired(clk.Now()))
	require.True(t, m.Contains("old"))

	clk.Add(time.Millisecond)
	require.False(t, m.Contains("old"), "expired records are invisible before the sweep")
	require.Equal(t, 2, m.Len())
	require.Equal(t, 1, m.EvictExpired(clk.Now()))
	require.Equal(t, 1, m.Len())
	require.True(t, m.Contains("young"))
}

func TestExpiredRecordRebind(t *testing.T) {
	m, clk := newTestMap(t)
	_, err := m.Bind("a", netip.MustParseAddrPort("1.2.3.4:1000"))
	require.NoError(t, err)
	require.NoError(t, m.Mutate("a", func(r Record[string]) Record[string] {
		r.WaitingPunch = true
		r.WaitingFor = "b"
		return r
	}))
	clk.Add(TimeToLive + time.Second)
	require.ErrorIs(t, m.RefreshTimestamp("a"), ErrNotFound)

	// an expired record is replaced, even by the placeholder
	r, err := m.Bind("a", DefaultPlaceholder)
	require.NoError(t, err)
	require.Equal(t, DefaultPlaceholder, r.Addr)
	require.False(t, r.WaitingPunch)
}

func TestScan(t *testing.T) {
	m, clk := newTestMap(t)
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	for _, id := range []string{"a", "b", "c"} {
		_, err := m.Bind(id, addr)
		require.NoError(t, err)
	}
	require.NoError(t, m.Mutate("b", func(r Record[string]) Record[string] {
		r.WaitingPunch = true
		r.WaitingFor = "a"
		return r
	}))
	r, ok := m.Scan(func(r Record[string]) bool { return r.IsWaitingFor("a") })
	require.True(t, ok)
	require.Equal(t, "b", r.ID)

	_, ok = m.Scan(func(r Record[string]) bool { return r.IsWaitingFor("c") })
	require.False(t, ok)

	clk.Add(TimeToLive + time.Second)
	_, ok = m.Scan(func(r Record[string]) bool { return r.IsWaitingFor("a") })
	require.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	addr := netip.MustParseAddrPort("1.2.3.4:1000")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := i*100 + j
				_, err := m.Bind(id, addr)
				require.NoError(t, err)
				require.True(t, m.Contains(id))
				require.NoError(t, m.RefreshTimestamp(id))
				m.Scan(func(r Record[int]) bool { return r.IsWaitingFor(id) })
				m.EvictExpired(m.Now())
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1600, m.Len())
}
