package rendezvouscmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.inet256.org/rendezvous/pkg/rendezvous"
	"go.inet256.org/rendezvous/pkg/rendezvoushttp"
)

type ClientFactory = func() *rendezvoushttp.Client

const defaultPollPeriod = time.Second

func newStoreCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "store <peer-id> <ip:port>",
		Short: "registers the address of a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := newClient().Store(ctx, rendezvous.PeerID(args[0]), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
}

func newDiscoverCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <peer-id>",
		Short: "prints the address of a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, ok, err := newClient().Discover(ctx, rendezvous.PeerID(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("peer %s is not present", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
}

func newPunchCmd(newClient ClientFactory) *cobra.Command {
	var wait bool
	var period time.Duration
	c := &cobra.Command{
		Use:   "punch <sender-id> <target-id>",
		Short: "asks to punch with a target, and reports whether the target is also waiting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			sender, target := rendezvous.PeerID(args[0]), rendezvous.PeerID(args[1])
			w := cmd.OutOrStdout()
			if wait {
				if err := client.AwaitPunch(ctx, sender, target, period); err != nil {
					return err
				}
				fmt.Fprintln(w, rendezvous.StatusPunch)
				return nil
			}
			punch, err := client.RequestPunch(ctx, sender, target)
			if err != nil {
				return err
			}
			if punch {
				fmt.Fprintln(w, rendezvous.StatusPunch)
			} else {
				fmt.Fprintln(w, rendezvous.StatusNotPunch)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&wait, "wait", false, "poll until the target is waiting too")
	c.Flags().DurationVar(&period, "period", defaultPollPeriod, "polling period used with --wait")
	return c
}

func newWaitCmd(newClient ClientFactory) *cobra.Command {
	var period time.Duration
	c := &cobra.Command{
		Use:   "wait <sender-id>",
		Short: "polls until some peer asks to punch with sender, and prints that peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			other, err := newClient().AwaitPeer(ctx, rendezvous.PeerID(args[0]), period)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), other)
			return nil
		},
	}
	c.Flags().DurationVar(&period, "period", defaultPollPeriod, "polling period")
	return c
}

func newKeepAliveCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "keep-alive <sender-id>",
		Short: "refreshes the registration of a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alive, err := newClient().KeepAlive(ctx, rendezvous.PeerID(args[0]))
			if err != nil {
				return err
			}
			if alive {
				fmt.Fprintln(cmd.OutOrStdout(), rendezvous.StatusAlive)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), rendezvous.StatusNotAlive)
			}
			return nil
		},
	}
}

func newHealthCmd(newClient ClientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "checks that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Health(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendezvous.StatusOK)
			return nil
		},
	}
}
