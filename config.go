package vaultbay

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config configures a marketplace client. Zero values fall back to the
// defaults applied by Load and New.
type Config struct {
	// StorePath is the directory for the local credential store.
	StorePath string `yaml:"storePath"`
	// Origin is the requesting origin embedded in session challenges.
	Origin string `yaml:"origin"`

	// Publishers and Aggregators are the storage node lists, tried in
	// order.
	Publishers  []string `yaml:"publishers"`
	Aggregators []string `yaml:"aggregators"`
	// StoreAPIPath selects the storage write endpoint ("/v1/store" or
	// "/v1/blobs") for the deployed network version.
	StoreAPIPath string `yaml:"storeApiPath"`
	// Epochs is the default storage duration for uploads.
	Epochs int `yaml:"epochs"`
	// NodeTimeoutSeconds bounds each storage node attempt.
	NodeTimeoutSeconds int `yaml:"nodeTimeoutSeconds"`

	// KeyReleaseEndpoint is the threshold network's API endpoint.
	KeyReleaseEndpoint string `yaml:"keyReleaseEndpoint"`
	// Chain names the ledger network the key-release policy checks.
	Chain string `yaml:"chain"`

	// LedgerRPC is the full-node JSON-RPC URL.
	LedgerRPC string `yaml:"ledgerRpc"`
	// PackageID is the marketplace package on the ledger.
	PackageID string `yaml:"packageId"`
	// MarketAddress owns the listing objects.
	MarketAddress string `yaml:"marketAddress"`

	// Compress runs plaintext through xz around the encrypt/decrypt
	// boundary.
	Compress bool `yaml:"compress"`
	// MinimumFreeGB refuses to open the credential store below this much
	// free disk.
	MinimumFreeGB uint `yaml:"minimumFreeGB"`

	// ViewTimeoutSeconds is carried for configuration compatibility with
	// deployed marketplaces. No view path consumes it yet.
	ViewTimeoutSeconds int `yaml:"viewTimeoutSeconds"`

	// Logger is optional; a stderr logger is used when nil.
	Logger *logrus.Logger `yaml:"-"`
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("vaultbay: reading config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("vaultbay: parsing config: %w", err)
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.StorePath == "" {
		c.StorePath = "vaultbay-data"
	}
	if c.Epochs == 0 {
		c.Epochs = 5
	}
	if c.NodeTimeoutSeconds == 0 {
		c.NodeTimeoutSeconds = 30
	}
	if c.Chain == "" {
		c.Chain = "testnet"
	}
	if c.ViewTimeoutSeconds == 0 {
		c.ViewTimeoutSeconds = 30
	}
}

func (c *Config) nodeTimeout() time.Duration {
	return time.Duration(c.NodeTimeoutSeconds) * time.Second
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}
