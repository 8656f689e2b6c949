package rendezvousd

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"go.inet256.org/rendezvous/pkg/keepalive"
	"go.inet256.org/rendezvous/pkg/relaymap"
	"go.inet256.org/rendezvous/pkg/rendezvoushttp"
	"go.inet256.org/rendezvous/pkg/rendezvoustest"
)

func TestLoadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
listen_addr: 127.0.0.1:9000
ttl: 5m
sweep_period: 30s
cors:
  allowed_origins: ["https://app.example.com"]
self_ping:
  url: https://relay.example.com/health
`), 0o644))
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", c.ListenAddr)
	require.Equal(t, 5*time.Minute, c.TTL)
	require.Equal(t, 30*time.Second, c.SweepPeriod)
	// unset fields keep their defaults
	require.Equal(t, relaymap.MaxRelayCount, c.MaxPeers)
	require.Equal(t, "127.0.0.9:9", c.PlaceholderAddr)
	require.Equal(t, []string{"https://app.example.com"}, c.CORS.AllowedOrigins)
	require.NotNil(t, c.SelfPing)

	params, err := MakeParams(*c)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", params.ListenAddr)
	require.Equal(t, 30*time.Second, params.SweepPeriod)
	require.NotNil(t, params.SelfPing)
	require.Equal(t, "https://relay.example.com/health", params.SelfPing.URL)
}

func TestSaveDefaultConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, SaveConfig(DefaultConfig(), p))
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), *c)
}

func TestMakeParamsErrors(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.PlaceholderAddr = "nope" },
		func(c *Config) { c.MaxPeers = -1 },
		func(c *Config) { c.TTL = -time.Second },
		func(c *Config) { c.SelfPing = &SelfPingSpec{} },
	} {
		c := DefaultConfig()
		mutate(&c)
		_, err := MakeParams(c)
		require.Error(t, err)
	}
}

func TestDaemon(t *testing.T) {
	ctx := rendezvoustest.Context(t)
	var pings atomic.Int64
	pinged := http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pings.Add(1)
	})}
	pl, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go pinged.Serve(pl)
	t.Cleanup(func() { pinged.Close() })

	c := DefaultConfig()
	c.MaxPeers = 2
	c.SelfPing = &SelfPingSpec{URL: "http://" + pl.Addr().String() + "/health", Period: time.Minute}
	params, err := MakeParams(c)
	require.NoError(t, err)
	clk := clock.NewMock()
	params.Clock = clk
	params.SelfPing.Clock = clk
	d, err := New(*params)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cf := context.WithCancel(ctx)
	eg := errgroup.Group{}
	eg.Go(func() error {
		return d.Serve(ctx, l)
	})
	t.Cleanup(func() {
		cf()
		require.ErrorIs(t, eg.Wait(), context.Canceled)
	})

	client := rendezvoushttp.NewClient("http://"+l.Addr().String(), nil)
	require.Eventually(t, func() bool {
		return client.Health(ctx) == nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err = client.Store(ctx, "a", "1.2.3.4:1000")
	require.NoError(t, err)
	_, err = client.Store(ctx, "b", "5.6.7.8:2000")
	require.NoError(t, err)
	_, err = client.Store(ctx, "c", "5.6.7.8:2000")
	require.ErrorIs(t, err, relaymap.ErrCapacityExceeded)

	// the sweeper runs on the daemon's clock
	require.Eventually(t, func() bool {
		clk.Add(time.Minute)
		_, ok, err := client.Discover(ctx, "a")
		return err == nil && !ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		clk.Add(time.Minute)
		return d.Coordinator().Stats().Peers == 0 && pings.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)

	res, err := http.Get("http://" + l.Addr().String() + rendezvoushttp.PathMetrics)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "rendezvous_evicted_total 2")
}

func TestPingerDefaults(t *testing.T) {
	c := DefaultConfig()
	c.SelfPing = &SelfPingSpec{URL: "http://127.0.0.1/health"}
	params, err := MakeParams(c)
	require.NoError(t, err)
	require.Equal(t, &keepalive.Pinger{URL: "http://127.0.0.1/health"}, params.SelfPing)
}
