// Package rendezvoushttp exposes a rendezvous.Coordinator as a JSON over HTTP API.
package rendezvoushttp

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"go.inet256.org/rendezvous/pkg/relaymap"
	"go.inet256.org/rendezvous/pkg/rendezvous"
)

type PeerID = rendezvous.PeerID

const (
	PathStore        = "/store"
	PathDiscover     = "/discover"
	PathWaitingPunch = "/waiting_punch"
	PathKeepAlive    = "/keep_alive"
	PathPassiveWait  = "/passive_wait"
	PathHealth       = "/health"
	PathMetrics      = "/metrics"
)

const maxRequestSize = 1 << 16

type StoreReq struct {
	SenderID PeerID `json:"sender_id"`
	Addr     string `json:"p2p_addr"`
}

type DiscoverReq struct {
	TargetID PeerID `json:"target_id"`
}

type WaitingPunchReq struct {
	SenderID PeerID `json:"sender_id"`
	TargetID PeerID `json:"target_id"`
}

// KeepAliveReq may carry an address, which is ignored.
type KeepAliveReq struct {
	SenderID PeerID `json:"sender_id"`
	Addr     string `json:"p2p_addr,omitempty"`
}

type PassiveWaitReq struct {
	SenderID PeerID `json:"sender_id"`
}

// RelayRes is the response to every operation except passive wait and health.
type RelayRes struct {
	Status  rendezvous.Status `json:"status"`
	Message string            `json:"message"`
}

type PassiveWaitRes struct {
	Status        rendezvous.Status `json:"status"`
	PeerPublicKey *PeerID           `json:"peer_public_key"`
}

type HealthRes struct {
	Status rendezvous.Status `json:"status"`
}

// errorMessage returns the message reported to clients for err.
func errorMessage(err error) string {
	for _, target := range []error{
		rendezvous.ErrMalformedAddr,
		rendezvous.ErrNotRegistered,
		relaymap.ErrCapacityExceeded,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

// parseErrorMessage is the inverse of errorMessage.
func parseErrorMessage(msg string) error {
	for _, target := range []error{
		rendezvous.ErrMalformedAddr,
		rendezvous.ErrNotRegistered,
		relaymap.ErrCapacityExceeded,
	} {
		if msg == target.Error() {
			return target
		}
	}
	return errors.New(msg)
}

func readJSON(r io.ReadCloser, x interface{}) error {
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, maxRequestSize))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, x)
}

func writeJSON(w http.ResponseWriter, code int, x interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(marshalJSON(x))
}

func marshalJSON(x interface{}) []byte {
	data, err := json.Marshal(x)
	if err != nil {
		panic(err)
	}
	return data
}
