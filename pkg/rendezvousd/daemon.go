// Package rendezvousd runs a rendezvous server: the HTTP API, the eviction sweeper, and an optional self ping loop.
package rendezvousd

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.inet256.org/rendezvous/pkg/keepalive"
	"go.inet256.org/rendezvous/pkg/relaymap"
	"go.inet256.org/rendezvous/pkg/rendezvous"
	"go.inet256.org/rendezvous/pkg/rendezvoushttp"
)

const shutdownTimeout = 5 * time.Second

type Params struct {
	ListenAddr     string
	MapOptions     []relaymap.Option
	SweepPeriod    time.Duration
	AllowedOrigins []string
	SelfPing       *keepalive.Pinger
	Clock          clock.Clock
}

type Daemon struct {
	params Params
	clock  clock.Clock
	coord  *rendezvous.Coordinator
	reg    *prometheus.Registry
}

func New(p Params) (*Daemon, error) {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	opts := append([]relaymap.Option{relaymap.WithClock(clk)}, p.MapOptions...)
	coord := rendezvous.NewCoordinator(relaymap.New[rendezvous.PeerID](opts...))

	reg := prometheus.NewRegistry()
	if err := coord.Metrics().Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return &Daemon{
		params: p,
		clock:  clk,
		coord:  coord,
		reg:    reg,
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", d.params.ListenAddr)
	if err != nil {
		return err
	}
	defer l.Close()
	return d.Serve(ctx, l)
}

// Serve runs the daemon using l for the HTTP API.
func (d *Daemon) Serve(ctx context.Context, l net.Listener) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return d.runHTTPServer(ctx, l)
	})
	eg.Go(func() error {
		return d.coord.NewSweeper(d.params.SweepPeriod, d.clock).Run(ctx)
	})
	if d.params.SelfPing != nil {
		eg.Go(func() error {
			return d.params.SelfPing.Run(ctx)
		})
	}
	return eg.Wait()
}

func (d *Daemon) Coordinator() *rendezvous.Coordinator {
	return d.coord
}

func (d *Daemon) Gatherer() prometheus.Gatherer {
	return d.reg
}

func (d *Daemon) runHTTPServer(ctx context.Context, l net.Listener) error {
	srv := rendezvoushttp.NewServer(d.coord,
		rendezvoushttp.WithAllowedOrigins(d.params.AllowedOrigins),
		rendezvoushttp.WithMetrics(d.reg),
	)
	hSrv := http.Server{
		Handler:     srv,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logctx.Infof(ctx, "API listening on: %v", l.Addr())
		errCh <- hSrv.Serve(l)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cf := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cf()
	err := hSrv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != http.ErrServerClosed {
		err = multierr.Append(err, serveErr)
	}
	return multierr.Append(err, ctx.Err())
}
