package rendezvoushttp

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.brendoncarroll.net/stdctx/logctx"

	"go.inet256.org/rendezvous/pkg/rendezvous"
)

type Option func(*Server)

// WithAllowedOrigins sets the origins allowed by CORS. "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithMetrics serves the metrics gathered by g on PathMetrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

type Server struct {
	c        *rendezvous.Coordinator
	origins  []string
	gatherer prometheus.Gatherer

	mux *chi.Mux
}

func NewServer(c *rendezvous.Coordinator, opts ...Option) *Server {
	s := &Server{
		c:       c,
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	mux.Post(PathStore, s.handleStore)
	mux.Post(PathDiscover, s.handleDiscover)
	mux.Post(PathWaitingPunch, s.handleWaitingPunch)
	mux.Post(PathKeepAlive, s.handleKeepAlive)
	mux.Post(PathPassiveWait, s.handlePassiveWait)
	mux.Get(PathHealth, s.handleHealth)
	if s.gatherer != nil {
		mux.Handle(PathMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req StoreReq
	if !s.readReq(w, r, &req) {
		return
	}
	addr, err := s.c.Store(r.Context(), req.SenderID, req.Addr)
	if err != nil {
		writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusError, Message: errorMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusStored, Message: addr.String()})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverReq
	if !s.readReq(w, r, &req) {
		return
	}
	addr, ok := s.c.Discover(r.Context(), req.TargetID)
	if !ok {
		writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusNotPresent})
		return
	}
	writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusPresent, Message: addr.String()})
}

func (s *Server) handleWaitingPunch(w http.ResponseWriter, r *http.Request) {
	var req WaitingPunchReq
	if !s.readReq(w, r, &req) {
		return
	}
	punch, err := s.c.RequestPunch(r.Context(), req.SenderID, req.TargetID)
	switch {
	case err != nil:
		writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusError, Message: errorMessage(err)})
	case punch:
		writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusPunch, Message: string(req.TargetID)})
	default:
		writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusNotPunch})
	}
}

func (s *Server) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	var req KeepAliveReq
	if !s.readReq(w, r, &req) {
		return
	}
	if !s.c.KeepAlive(r.Context(), req.SenderID) {
		writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusNotAlive})
		return
	}
	writeJSON(w, http.StatusOK, RelayRes{Status: rendezvous.StatusAlive})
}

func (s *Server) handlePassiveWait(w http.ResponseWriter, r *http.Request) {
	var req PassiveWaitReq
	if !s.readReq(w, r, &req) {
		return
	}
	other, found := s.c.PassiveWait(r.Context(), req.SenderID)
	if !found {
		writeJSON(w, http.StatusOK, PassiveWaitRes{Status: rendezvous.StatusNone})
		return
	}
	writeJSON(w, http.StatusOK, PassiveWaitRes{Status: rendezvous.StatusPeerFound, PeerPublicKey: &other})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthRes{Status: rendezvous.StatusOK})
}

// readReq decodes the request body into x, and writes an error response if that is not possible.
func (s *Server) readReq(w http.ResponseWriter, r *http.Request, x interface{}) bool {
	if err := readJSON(r.Body, x); err != nil {
		logctx.Warnf(r.Context(), "bad request to %s: %v", r.URL.Path, err)
		writeJSON(w, http.StatusBadRequest, RelayRes{Status: rendezvous.StatusError, Message: "invalid request"})
		return false
	}
	return true
}
