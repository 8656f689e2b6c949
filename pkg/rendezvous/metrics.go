package rendezvous

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rendezvous"

// Metrics holds the collectors for a Coordinator and its Sweeper.
type Metrics struct {
	requests *prometheus.CounterVec
	evicted  prometheus.Counter
	peers    prometheus.GaugeFunc
}

func newMetrics(peerCount func() int) *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Rendezvous operations by operation and status",
		}, []string{"op", "status"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evicted_total",
			Help:      "Peers removed after their TTL expired",
		}),
		peers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers",
			Help:      "Number of records in the relay map",
		}, func() float64 {
			return float64(peerCount())
		}),
	}
}

// Register adds all the collectors to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.evicted, m.peers} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(op string, status Status) {
	m.requests.WithLabelValues(op, string(status)).Inc()
}

func (m *Metrics) addEvicted(n int) {
	m.evicted.Add(float64(n))
}
