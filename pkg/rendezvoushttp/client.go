package rendezvoushttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.brendoncarroll.net/stdctx/logctx"

	"go.inet256.org/rendezvous/internal/retry"
	"go.inet256.org/rendezvous/pkg/rendezvous"
)

var (
	errNotPunch = errors.New("target is not waiting")
	errNoPeer   = errors.New("no peer is waiting")
)

// Client calls a rendezvous Server over HTTP.
type Client struct {
	endpoint string
	hc       *http.Client
}

// NewClient returns a client for the server at endpoint, which should be a URL like http://127.0.0.1:8080.
// If hc is nil, http.DefaultClient is used.
func NewClient(endpoint string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		hc:       hc,
	}
}

// Store registers id at addr, and returns the address reported by the server.
func (c *Client) Store(ctx context.Context, id PeerID, addr string) (string, error) {
	var res RelayRes
	if err := c.post(ctx, PathStore, StoreReq{SenderID: id, Addr: addr}, &res); err != nil {
		return "", err
	}
	switch res.Status {
	case rendezvous.StatusStored:
		return res.Message, nil
	case rendezvous.StatusError:
		return "", parseErrorMessage(res.Message)
	default:
		return "", unexpectedStatus(PathStore, res.Status)
	}
}

func (c *Client) Discover(ctx context.Context, target PeerID) (netip.AddrPort, bool, error) {
	var res RelayRes
	if err := c.post(ctx, PathDiscover, DiscoverReq{TargetID: target}, &res); err != nil {
		return netip.AddrPort{}, false, err
	}
	switch res.Status {
	case rendezvous.StatusPresent:
		addr, err := rendezvous.ParseAddr(res.Message)
		if err != nil {
			return netip.AddrPort{}, false, err
		}
		return addr, true, nil
	case rendezvous.StatusNotPresent:
		return netip.AddrPort{}, false, nil
	default:
		return netip.AddrPort{}, false, unexpectedStatus(PathDiscover, res.Status)
	}
}

// RequestPunch returns true if target is waiting for sender.
func (c *Client) RequestPunch(ctx context.Context, sender, target PeerID) (bool, error) {
	var res RelayRes
	if err := c.post(ctx, PathWaitingPunch, WaitingPunchReq{SenderID: sender, TargetID: target}, &res); err != nil {
		return false, err
	}
	switch res.Status {
	case rendezvous.StatusPunch:
		return true, nil
	case rendezvous.StatusNotPunch:
		return false, nil
	case rendezvous.StatusError:
		return false, parseErrorMessage(res.Message)
	default:
		return false, unexpectedStatus(PathWaitingPunch, res.Status)
	}
}

func (c *Client) PassiveWait(ctx context.Context, sender PeerID) (PeerID, bool, error) {
	var res PassiveWaitRes
	if err := c.post(ctx, PathPassiveWait, PassiveWaitReq{SenderID: sender}, &res); err != nil {
		return "", false, err
	}
	switch res.Status {
	case rendezvous.StatusPeerFound:
		if res.PeerPublicKey == nil {
			return "", false, errors.New("peer_found response without a peer")
		}
		return *res.PeerPublicKey, true, nil
	case rendezvous.StatusNone:
		return "", false, nil
	default:
		return "", false, unexpectedStatus(PathPassiveWait, res.Status)
	}
}

// KeepAlive returns false if the server no longer knows sender, in which case it should Store again.
func (c *Client) KeepAlive(ctx context.Context, sender PeerID) (bool, error) {
	var res RelayRes
	if err := c.post(ctx, PathKeepAlive, KeepAliveReq{SenderID: sender}, &res); err != nil {
		return false, err
	}
	switch res.Status {
	case rendezvous.StatusAlive:
		return true, nil
	case rendezvous.StatusNotAlive:
		return false, nil
	default:
		return false, unexpectedStatus(PathKeepAlive, res.Status)
	}
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+PathHealth, nil)
	if err != nil {
		return err
	}
	var res HealthRes
	if err := c.do(req, &res); err != nil {
		return err
	}
	if res.Status != rendezvous.StatusOK {
		return unexpectedStatus(PathHealth, res.Status)
	}
	return nil
}

// AwaitPunch calls RequestPunch every period until target is waiting for sender.
func (c *Client) AwaitPunch(ctx context.Context, sender, target PeerID, period time.Duration) error {
	return retry.Poll(ctx, period, isErr(errNotPunch), func() error {
		punch, err := c.RequestPunch(ctx, sender, target)
		if err != nil {
			return err
		}
		if !punch {
			logctx.Debugf(ctx, "%v is not waiting for %v yet", target, sender)
			return errNotPunch
		}
		return nil
	})
}

// AwaitPeer calls PassiveWait every period until some peer is waiting for sender, and returns that peer.
func (c *Client) AwaitPeer(ctx context.Context, sender PeerID, period time.Duration) (PeerID, error) {
	return retry.RetryRet1(ctx, func() (PeerID, error) {
		other, found, err := c.PassiveWait(ctx, sender)
		if err != nil {
			return "", err
		}
		if !found {
			return "", errNoPeer
		}
		return other, nil
	}, retry.WithBackoff(retry.NewConstantBackoff(period)), retry.WithPredicate(isErr(errNoPeer)))
}

func (c *Client) post(ctx context.Context, p string, x, y interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+p, bytes.NewReader(marshalJSON(x)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, y)
}

func (c *Client) do(req *http.Request, y interface{}) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(y)
}

func unexpectedStatus(p string, status rendezvous.Status) error {
	return errors.Errorf("%s: unexpected status %q", p, status)
}

func isErr(target error) func(error) bool {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}
