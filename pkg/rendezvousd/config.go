package rendezvousd

import (
	"net/netip"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.inet256.org/rendezvous/pkg/keepalive"
	"go.inet256.org/rendezvous/pkg/relaymap"
	"go.inet256.org/rendezvous/pkg/rendezvous"
)

const DefaultListenAddr = "0.0.0.0:8080"

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MaxPeers        int           `yaml:"max_peers,omitempty"`
	TTL             time.Duration `yaml:"ttl,omitempty"`
	SweepPeriod     time.Duration `yaml:"sweep_period,omitempty"`
	PlaceholderAddr string        `yaml:"placeholder_addr,omitempty"`

	CORS     CORSSpec      `yaml:"cors"`
	SelfPing *SelfPingSpec `yaml:"self_ping,omitempty"`
}

type CORSSpec struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SelfPingSpec configures a loop which periodically requests URL, usually the server's own public health endpoint.
type SelfPingSpec struct {
	URL    string        `yaml:"url"`
	Period time.Duration `yaml:"period,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		MaxPeers:        relaymap.MaxRelayCount,
		TTL:             relaymap.TimeToLive,
		SweepPeriod:     rendezvous.DefaultSweepPeriod,
		PlaceholderAddr: relaymap.DefaultPlaceholder.String(),
		CORS: CORSSpec{
			AllowedOrigins: []string{"*"},
		},
	}
}

func LoadConfig(p string) (*Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", p)
	}
	return &c, nil
}

func SaveConfig(config Config, p string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func MakeParams(c Config) (*Params, error) {
	listenAddr := c.ListenAddr
	if listenAddr == "" {
		listenAddr = DefaultListenAddr
	}
	if c.MaxPeers < 0 {
		return nil, errors.Errorf("max_peers must be positive, have %d", c.MaxPeers)
	}
	if c.TTL < 0 || c.SweepPeriod < 0 {
		return nil, errors.Errorf("ttl and sweep_period must be positive")
	}
	policy := relaymap.DefaultPolicy()
	if c.PlaceholderAddr != "" {
		ph, err := netip.ParseAddrPort(c.PlaceholderAddr)
		if err != nil {
			return nil, errors.Wrap(err, "placeholder_addr")
		}
		policy.Placeholder = ph
	}
	sweepPeriod := c.SweepPeriod
	if sweepPeriod == 0 {
		sweepPeriod = rendezvous.DefaultSweepPeriod
	}
	var selfPing *keepalive.Pinger
	if c.SelfPing != nil {
		if c.SelfPing.URL == "" {
			return nil, errors.New("self_ping requires a url")
		}
		selfPing = &keepalive.Pinger{
			URL:    c.SelfPing.URL,
			Period: c.SelfPing.Period,
		}
	}
	return &Params{
		ListenAddr: listenAddr,
		MapOptions: []relaymap.Option{
			relaymap.WithMaxCount(c.MaxPeers),
			relaymap.WithTTL(c.TTL),
			relaymap.WithPolicy(policy),
		},
		SweepPeriod:    sweepPeriod,
		AllowedOrigins: c.CORS.AllowedOrigins,
		SelfPing:       selfPing,
	}, nil
}
