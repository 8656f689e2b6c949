package rendezvouscmd

import (
	"context"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"go.inet256.org/rendezvous/pkg/rendezvoushttp"
)

const (
	defaultServer = "http://127.0.0.1:8080"
	serverEnvKey  = "RENDEZVOUS_SERVER"
)

var ctx = func() context.Context {
	ctx := context.Background()
	l, _ := zap.NewProduction()
	ctx = logctx.NewContext(ctx, l)
	return ctx
}()

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	var server string
	newClient := func() *rendezvoushttp.Client {
		return rendezvoushttp.NewClient(server, http.DefaultClient)
	}
	c := &cobra.Command{
		Use:   "rendezvous",
		Short: "rendezvous: a signaling server for NAT hole punching",
	}
	c.PersistentFlags().StringVar(&server, "server", getServerFromEnv(), "URL of the rendezvous server")

	c.AddCommand(newServeCmd())
	c.AddCommand(newCreateConfigCmd())
	c.AddCommand(newSelfPingCmd())

	c.AddCommand(newStoreCmd(newClient))
	c.AddCommand(newDiscoverCmd(newClient))
	c.AddCommand(newPunchCmd(newClient))
	c.AddCommand(newWaitCmd(newClient))
	c.AddCommand(newKeepAliveCmd(newClient))
	c.AddCommand(newHealthCmd(newClient))
	return c
}

func getServerFromEnv() string {
	if x, ok := os.LookupEnv(serverEnvKey); ok {
		return x
	}
	return defaultServer
}
