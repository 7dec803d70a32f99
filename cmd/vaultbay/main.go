// vaultbay is the command-line client for the marketplace pipeline:
// publish encrypted content, access rented content, inspect listings and
// entitlement passes, or run the upload proxy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	vaultbay "github.com/vaultbay/vaultbay"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vaultbay",
	Short: "Client for the VaultBay encrypted-content marketplace",
	Long: `Publish access-controlled content to the decentralized marketplace and
retrieve content you hold a valid entitlement pass for. Content is
encrypted under a policy enforced by the key-release network, stored on
the storage fanout and anchored on the ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "vaultbay.yaml", "path to the YAML config file")
}

// newClient loads the config and returns a started client. Callers own
// Close.
func newClient() (*vaultbay.Client, error) {
	config, err := vaultbay.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	client, err := vaultbay.New(config)
	if err != nil {
		return nil, err
	}
	if err := client.Start(); err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
