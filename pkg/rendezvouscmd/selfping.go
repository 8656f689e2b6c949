package rendezvouscmd

import (
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.inet256.org/rendezvous/pkg/keepalive"
)

func newSelfPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-ping <url> [minutes]",
		Short: "requests a url periodically, to keep a hosted server from idling",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			period := keepalive.DefaultPeriod
			if len(args) > 1 {
				minutes, err := strconv.Atoi(args[1])
				if err != nil {
					return err
				}
				period = time.Duration(minutes) * time.Minute
			}
			p := keepalive.Pinger{URL: args[0], Period: period}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
