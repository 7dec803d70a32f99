// Package vaultbay is the client SDK for a decentralized content
// marketplace: content is encrypted under a policy enforced by a remote
// threshold key-release network, stored across a replicated storage fanout
// and anchored on a public ledger; access is granted only against a
// ledger-verified, time-bound entitlement.
//
// Client is the explicit composition context: constructed once at
// application start and passed by reference, it owns the shared
// key-release connection, the ledger gateway and the local credential
// store. There is no package-level mutable state.
package vaultbay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/vaultbay/vaultbay/pkg/fanout"
	"github.com/vaultbay/vaultbay/pkg/keyrelease"
	"github.com/vaultbay/vaultbay/pkg/ledger"
	"github.com/vaultbay/vaultbay/pkg/localstore"
	"github.com/vaultbay/vaultbay/pkg/pipeline"
	"github.com/vaultbay/vaultbay/pkg/session"
)

var (
	ErrNotStarted = errors.New("vaultbay: client not started")
	ErrClosed     = errors.New("vaultbay: client closed")
)

// Client is the marketplace client handle.
type Client struct {
	log    *logrus.Logger
	config Config

	store      *localstore.BadgerStore
	sessions   *session.Manager
	fanout     *fanout.Client
	keyRelease *keyrelease.Client
	ledger     *ledger.Gateway
	pipeline   *pipeline.Pipeline

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a client handle. New performs no I/O; call Start to open
// the local store and wire the services.
func New(config Config) (*Client, error) {
	if config.KeyReleaseEndpoint == "" {
		return nil, errors.New("vaultbay: key-release endpoint is required")
	}
	if config.LedgerRPC == "" {
		return nil, errors.New("vaultbay: ledger RPC URL is required")
	}
	if config.PackageID == "" {
		return nil, errors.New("vaultbay: package ID is required")
	}
	if config.Logger == nil {
		config.Logger = defaultLogger()
	}
	config.applyDefaults()
	return &Client{
		log:    config.Logger,
		config: config,
	}, nil
}

// Start opens the credential store and constructs the service clients.
// Safe to call multiple times; only the first call has effect.
func (c *Client) Start() error {
	var err error
	c.startOnce.Do(func() {
		err = c.start()
		if err == nil {
			c.started.Store(true)
		}
	})
	if err != nil {
		return err
	}
	if !c.started.Load() {
		return ErrNotStarted
	}
	return nil
}

func (c *Client) start() error {
	store, err := localstore.Open(localstore.Config{
		Path:          c.config.StorePath,
		MinimumFreeGB: c.config.MinimumFreeGB,
		Logger:        c.log,
	})
	if err != nil {
		return err
	}
	c.store = store

	c.sessions, err = session.NewManager(session.Config{
		Store:  store,
		Origin: c.config.Origin,
		Logger: c.log,
	})
	if err != nil {
		return err
	}

	c.fanout, err = fanout.New(fanout.Config{
		Publishers:  c.config.Publishers,
		Aggregators: c.config.Aggregators,
		StorePath:   c.config.StoreAPIPath,
		Timeout:     c.config.nodeTimeout(),
		Epochs:      c.config.Epochs,
		Logger:      c.log,
	})
	if err != nil {
		return err
	}

	c.keyRelease, err = keyrelease.New(keyrelease.Config{
		Endpoint: c.config.KeyReleaseEndpoint,
		Chain:    c.config.Chain,
		Sessions: c.sessions,
		Logger:   c.log,
	})
	if err != nil {
		return err
	}

	c.ledger, err = ledger.New(ledger.Config{
		RPCURL:        c.config.LedgerRPC,
		PackageID:     c.config.PackageID,
		MarketAddress: c.config.MarketAddress,
		Logger:        c.log,
	})
	if err != nil {
		return err
	}

	c.pipeline, err = pipeline.New(pipeline.Config{
		Fanout:     c.fanout,
		KeyRelease: c.keyRelease,
		Ledger:     c.ledger,
		PackageID:  c.config.PackageID,
		Epochs:     c.config.Epochs,
		Compress:   c.config.Compress,
		Logger:     c.log,
	})
	return err
}

// Close releases the local store. The ledger and key-release clients are
// read-mostly HTTP clients and need no teardown.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.store != nil {
			err = c.store.Close()
		}
		c.started.Store(false)
	})
	return err
}

func (c *Client) ready() error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// Publish encrypts and stores content, returning the identifiers to anchor
// on the ledger with BuildCreateListingTx.
func (c *Client) Publish(ctx context.Context, content []byte) (*pipeline.PublishResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.pipeline.Publish(ctx, content)
}

// Access downloads and decrypts a listing's content for the requester,
// subject to the network-side entitlement check.
func (c *Client) Access(ctx context.Context, listingID, requesterAddress string) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.pipeline.Access(ctx, listingID, requesterAddress)
}

// Address returns the local signing identity's public address.
func (c *Client) Address() (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.sessions.Address()
}

// Ledger exposes the gateway for queries and transaction building.
func (c *Client) Ledger() (*ledger.Gateway, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.ledger, nil
}

// Fanout exposes the storage client, mainly for the upload proxy.
func (c *Client) Fanout() (*fanout.Client, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.fanout, nil
}

// Sessions exposes the credential manager.
func (c *Client) Sessions() (*session.Manager, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.sessions, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("vaultbay.Client(package=%s, chain=%s)", c.config.PackageID, c.config.Chain)
}
