// Package keepalive pings a URL on a fixed period.
// It is used to stop hosting platforms from idling the rendezvous server between clients.
package keepalive

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.brendoncarroll.net/stdctx/logctx"
)

const (
	DefaultPeriod  = 4 * time.Minute
	DefaultTimeout = 10 * time.Second
)

type Pinger struct {
	URL     string
	Period  time.Duration
	Timeout time.Duration
	Client  *http.Client
	Clock   clock.Clock
}

// Run pings immediately, then every Period, until ctx is cancelled.
// Failed pings are logged and do not stop the loop.
func (p *Pinger) Run(ctx context.Context) error {
	clk := p.clock()
	period := p.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	logctx.Infof(ctx, "pinging %s every %v", p.URL, period)
	ticker := clk.Ticker(period)
	defer ticker.Stop()
	for {
		if code, err := p.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logctx.Errorf(ctx, "failed to ping %s: %v", p.URL, err)
		} else {
			logctx.Infof(ctx, "pinged %s: %d, next ping at %s", p.URL, code, clk.Now().Add(period).Format(time.TimeOnly))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ping makes a single GET request to URL and returns the status code.
func (p *Pinger) Ping(ctx context.Context) (int, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cf := context.WithTimeout(ctx, timeout)
	defer cf()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, err
	}
	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	res, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		return res.StatusCode, err
	}
	if res.StatusCode >= 400 {
		return res.StatusCode, errors.Errorf("status %s", res.Status)
	}
	return res.StatusCode, nil
}

func (p *Pinger) clock() clock.Clock {
	if p.Clock == nil {
		return clock.New()
	}
	return p.Clock
}
