package rendezvouscmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"gopkg.in/yaml.v3"

	"go.inet256.org/rendezvous/pkg/rendezvousd"
)

func newServeCmd() *cobra.Command {
	var configPath, listenAddr string
	c := &cobra.Command{
		Use:   "serve",
		Short: "runs the rendezvous server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := rendezvousd.DefaultConfig()
			if configPath != "" {
				c, err := rendezvousd.LoadConfig(configPath)
				if err != nil {
					return err
				}
				logctx.Infof(ctx, "using config from path: %v", configPath)
				config = *c
			}
			if listenAddr != "" {
				config.ListenAddr = listenAddr
			}
			params, err := rendezvousd.MakeParams(config)
			if err != nil {
				return err
			}
			d, err := rendezvousd.New(*params)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logctx.Infof(ctx, "shut down")
			return nil
		},
	}
	c.Flags().StringVar(&configPath, "config", "", "--config=./path/to/config.yaml")
	c.Flags().StringVar(&listenAddr, "listen", "", "address to listen on, overrides the config")
	return c
}

func newCreateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-config",
		Short: "writes a default config to the path, or to stdout if no path is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rendezvousd.DefaultConfig()
			if len(args) > 0 {
				return rendezvousd.SaveConfig(c, args[0])
			}
			data, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
