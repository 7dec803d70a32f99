package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	vaultbay "github.com/vaultbay/vaultbay"
	"github.com/vaultbay/vaultbay/pkg/fanout"
	"github.com/vaultbay/vaultbay/pkg/proxy"
)

var proxyListen string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the upload proxy fronting the storage fanout",
	Long: `Serves POST /api/upload for browser clients that cannot reach the
storage nodes directly. The proxy performs the same ordered node
failover as the client-side fanout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := vaultbay.LoadConfig(configPath)
		if err != nil {
			return err
		}
		// the proxy needs no credentials or ledger access, just the fanout
		client, err := fanout.New(fanout.Config{
			Publishers: config.Publishers,
			StorePath:  config.StoreAPIPath,
			Timeout:    time.Duration(config.NodeTimeoutSeconds) * time.Second,
			Epochs:     config.Epochs,
			Logger:     config.Logger,
		})
		if err != nil {
			return err
		}
		handler, err := proxy.NewHandler(proxy.Config{
			Fanout: client,
			Epochs: config.Epochs,
			Logger: config.Logger,
		})
		if err != nil {
			return err
		}
		return http.ListenAndServe(proxyListen, handler.Mux())
	},
}

func init() {
	proxyCmd.Flags().StringVar(&proxyListen, "listen", ":8787", "listen address")
	rootCmd.AddCommand(proxyCmd)
}
