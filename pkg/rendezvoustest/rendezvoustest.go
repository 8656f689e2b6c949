// Package rendezvoustest contains helpers for testing against a Coordinator.
package rendezvoustest

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"go.inet256.org/rendezvous/pkg/relaymap"
	"go.inet256.org/rendezvous/pkg/rendezvous"
)

func Context(t testing.TB) context.Context {
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	ctx := context.Background()
	ctx = logctx.NewContext(ctx, l)
	return ctx
}

// NewCoordinator returns a Coordinator backed by a fresh map, driven by a mock clock.
func NewCoordinator(t testing.TB, opts ...relaymap.Option) (*rendezvous.Coordinator, *clock.Mock) {
	clk := clock.NewMock()
	opts = append([]relaymap.Option{relaymap.WithClock(clk)}, opts...)
	peers := relaymap.New[rendezvous.PeerID](opts...)
	return rendezvous.NewCoordinator(peers), clk
}
