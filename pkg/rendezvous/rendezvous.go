// Package rendezvous implements the hole punch coordination protocol on top of a relaymap.Map.
package rendezvous

import (
	"context"
	"net/netip"

	"github.com/pkg/errors"
	"go.brendoncarroll.net/stdctx/logctx"

	"go.inet256.org/rendezvous/pkg/relaymap"
)

// PeerID identifies a peer. Usually it is the peer's encoded public key.
type PeerID string

type Record = relaymap.Record[PeerID]

var (
	ErrMalformedAddr = errors.New("invalid address")
	ErrNotRegistered = errors.New("not registered")
)

// Status is the outcome of an operation, as reported to clients.
type Status string

const (
	StatusOK         Status = "ok"
	StatusError      Status = "error"
	StatusStored     Status = "stored"
	StatusPresent    Status = "present"
	StatusNotPresent Status = "not_present"
	StatusPunch      Status = "punch"
	StatusNotPunch   Status = "not_punch"
	StatusPeerFound  Status = "peer_found"
	StatusNone       Status = "none"
	StatusAlive      Status = "alive"
	StatusNotAlive   Status = "not_alive"
)

// ParseAddr parses an IPv4 host:port.
func ParseAddr(x string) (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(x)
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(ErrMalformedAddr, "%q", x)
	}
	if !addr.Addr().Is4() {
		return netip.AddrPort{}, errors.Wrapf(ErrMalformedAddr, "%q is not ipv4", x)
	}
	return addr, nil
}

type Stats struct {
	Peers int
}

// Coordinator implements the rendezvous operations.
// It holds no state of its own; everything lives in the relaymap.Map.
type Coordinator struct {
	peers   *relaymap.Map[PeerID]
	metrics *Metrics
}

func NewCoordinator(peers *relaymap.Map[PeerID]) *Coordinator {
	c := &Coordinator{peers: peers}
	c.metrics = newMetrics(peers.Len)
	return c
}

// Store binds id to the address in addr.
// The returned address is the parsed form of addr. If addr is the placeholder and id already has
// a known address, the known address is kept, but id is still considered alive.
func (c *Coordinator) Store(ctx context.Context, id PeerID, addr string) (netip.AddrPort, error) {
	ap, err := ParseAddr(addr)
	if err != nil {
		c.metrics.observe("store", StatusError)
		return netip.AddrPort{}, err
	}
	rec, err := c.peers.Bind(id, ap)
	if err != nil {
		logctx.Warnf(ctx, "could not bind peer %v: %v", id, err)
		c.metrics.observe("store", StatusError)
		return netip.AddrPort{}, err
	}
	if rec.Addr != ap {
		logctx.Infof(ctx, "keeping address %v for peer %v, rejected placeholder", rec.Addr, id)
	} else {
		logctx.Debugf(ctx, "bound peer %v to %v", id, ap)
	}
	c.metrics.observe("store", StatusStored)
	return ap, nil
}

// Discover returns the address of target, if it is registered.
func (c *Coordinator) Discover(ctx context.Context, target PeerID) (netip.AddrPort, bool) {
	rec, exists := c.peers.Lookup(target)
	if !exists {
		logctx.Debugf(ctx, "peer %v not found", target)
		c.metrics.observe("discover", StatusNotPresent)
		return netip.AddrPort{}, false
	}
	c.metrics.observe("discover", StatusPresent)
	return rec.Addr, true
}

// RequestPunch records that sender wants to punch with target, and returns true if target
// is already waiting for sender.
//
// The sender is updated and the target is read in two separate critical sections.
// A concurrent call from target can land between them, in which case both calls may return false.
// The next call from either peer, or PassiveWait, will observe the match.
//
// Wait state is not cleared when a match is reported: calls keep returning true
// until one of the peers targets someone else or expires.
func (c *Coordinator) RequestPunch(ctx context.Context, sender, target PeerID) (bool, error) {
	if err := c.peers.Mutate(sender, func(r Record) Record {
		r.WaitingPunch = true
		r.WaitingFor = target
		return r
	}); err != nil {
		if errors.Is(err, relaymap.ErrNotFound) {
			logctx.Debugf(ctx, "peer %v not registered", sender)
			c.metrics.observe("waiting_punch", StatusError)
			return false, errors.Wrapf(ErrNotRegistered, "peer %v", sender)
		}
		return false, err
	}
	rec, exists := c.peers.Lookup(target)
	if exists && rec.IsWaitingFor(sender) {
		logctx.Infof(ctx, "peers %v and %v are waiting for each other", sender, target)
		c.metrics.observe("waiting_punch", StatusPunch)
		return true, nil
	}
	logctx.Debugf(ctx, "peer %v is waiting for %v", sender, target)
	c.metrics.observe("waiting_punch", StatusNotPunch)
	return false, nil
}

// PassiveWait returns a peer which is waiting to punch with sender.
// sender does not need to be registered.
func (c *Coordinator) PassiveWait(ctx context.Context, sender PeerID) (PeerID, bool) {
	rec, found := c.peers.Scan(func(r Record) bool {
		return r.IsWaitingFor(sender)
	})
	if !found {
		c.metrics.observe("passive_wait", StatusNone)
		return "", false
	}
	logctx.Debugf(ctx, "peer %v is waiting for %v", rec.ID, sender)
	c.metrics.observe("passive_wait", StatusPeerFound)
	return rec.ID, true
}

// KeepAlive refreshes sender, and returns false if sender is not registered.
func (c *Coordinator) KeepAlive(ctx context.Context, sender PeerID) bool {
	if err := c.peers.RefreshTimestamp(sender); err != nil {
		c.metrics.observe("keep_alive", StatusNotAlive)
		return false
	}
	c.metrics.observe("keep_alive", StatusAlive)
	return true
}

func (c *Coordinator) Stats() Stats {
	return Stats{Peers: c.peers.Len()}
}

func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}
