// Package fanout moves blobs to and from an ordered list of interchangeable
// storage nodes. Nodes are tried strictly in configured order with a bounded
// per-node timeout; the first success wins and later nodes are never
// contacted. There is no liveness probing and no load balancing, so the
// worst case before a success is (dead nodes ahead in the list) x timeout.
package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds a single node attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultStorePath is the write endpoint on current storage networks.
	// Older deployments expose "/v1/blobs" instead; see Config.StorePath.
	DefaultStorePath = "/v1/store"

	readPath = "/v1/blobs/"
)

// Config configures a fanout client. Publishers receive uploads, Aggregators
// serve downloads. Both lists are tried in the order given.
type Config struct {
	Publishers  []string
	Aggregators []string
	// StorePath selects the write endpoint, "/v1/store" or "/v1/blobs"
	// depending on the deployed network version. Empty means DefaultStorePath.
	StorePath string
	// Timeout bounds each individual node attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Epochs is the default storage duration used when Upload is called
	// with epochs <= 0.
	Epochs int
	Logger *logrus.Logger
	// HTTPClient is optional; a default client is used when nil. Per-node
	// timeouts are enforced through request contexts either way.
	HTTPClient *http.Client
}

// Client is the fanout client. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	log        *logrus.Logger
}

// New validates the node lists and returns a client.
func New(config Config) (*Client, error) {
	if len(config.Publishers) == 0 && len(config.Aggregators) == 0 {
		return nil, errors.New("fanout: at least one publisher or aggregator node is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.StorePath == "" {
		config.StorePath = DefaultStorePath
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		log:        config.Logger,
	}, nil
}

// storeResponse covers both success shapes the storage network returns: a
// fresh write and an idempotent re-upload of content that is already
// certified.
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

func (r *storeResponse) blobID() (string, bool) {
	if r.NewlyCreated != nil && r.NewlyCreated.BlobObject.BlobID != "" {
		return r.NewlyCreated.BlobObject.BlobID, true
	}
	if r.AlreadyCertified != nil && r.AlreadyCertified.BlobID != "" {
		return r.AlreadyCertified.BlobID, true
	}
	return "", false
}

// Upload writes payload to the first publisher node that accepts it and
// returns the network-issued blob ID. epochs <= 0 falls back to the
// configured default. If every node fails the returned error is an
// *AllNodesFailedError listing one entry per node in configured order.
func (c *Client) Upload(ctx context.Context, payload []byte, epochs int) (string, error) {
	raw, err := c.UploadRaw(ctx, payload, epochs)
	if err != nil {
		return "", err
	}
	var parsed storeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("fanout: unparseable store response: %w", err)
	}
	id, ok := parsed.blobID()
	if !ok {
		return "", errors.New("fanout: store response carries no blob ID")
	}
	return id, nil
}

// UploadRaw is Upload without response parsing: it returns the storage
// network's native JSON body from the first successful node. The upload
// proxy relays this body to browser callers verbatim.
func (c *Client) UploadRaw(ctx context.Context, payload []byte, epochs int) ([]byte, error) {
	if len(c.config.Publishers) == 0 {
		return nil, errors.New("fanout: no publisher nodes configured")
	}
	if epochs <= 0 {
		epochs = c.config.Epochs
	}
	var nodeErrs []NodeError
	for _, node := range c.config.Publishers {
		body, status, err := c.storeOnNode(ctx, node, payload, epochs)
		if err == nil {
			c.log.WithFields(logrus.Fields{
				"node":  node,
				"bytes": len(payload),
			}).Debug("blob stored")
			return body, nil
		}
		c.log.WithFields(logrus.Fields{
			"node":   node,
			"status": status,
		}).Warnf("store attempt failed: %v", err)
		nodeErrs = append(nodeErrs, NodeError{Node: node, Status: status, Message: err.Error()})
	}
	return nil, &AllNodesFailedError{Op: "upload", Errors: nodeErrs}
}

func (c *Client) storeOnNode(ctx context.Context, node string, payload []byte, epochs int) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := strings.TrimRight(node, "/") + c.config.StorePath + "?epochs=" + strconv.Itoa(epochs)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	// Reject bodies that do not carry a blob ID here so the failover loop
	// moves on to the next node instead of surfacing a broken response.
	var parsed storeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("unparseable store response: %w", err)
	}
	if _, ok := parsed.blobID(); !ok {
		return nil, resp.StatusCode, errors.New("store response carries no blob ID")
	}
	return body, resp.StatusCode, nil
}

// Download fetches a blob by ID from the first aggregator node that has it.
// A 404 from one node is an ordinary failure; the next node is tried. If
// every node fails the returned error is an *AllNodesFailedError.
func (c *Client) Download(ctx context.Context, blobID string) ([]byte, error) {
	if len(c.config.Aggregators) == 0 {
		return nil, errors.New("fanout: no aggregator nodes configured")
	}
	if blobID == "" {
		return nil, errors.New("fanout: empty blob ID")
	}
	var nodeErrs []NodeError
	for _, node := range c.config.Aggregators {
		body, status, err := c.readFromNode(ctx, node, blobID)
		if err == nil {
			return body, nil
		}
		c.log.WithFields(logrus.Fields{
			"node":   node,
			"status": status,
			"blobId": blobID,
		}).Warnf("read attempt failed: %v", err)
		nodeErrs = append(nodeErrs, NodeError{Node: node, Status: status, Message: err.Error()})
	}
	return nil, &AllNodesFailedError{Op: "download", Errors: nodeErrs}
}

func (c *Client) readFromNode(ctx context.Context, node, blobID string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := strings.TrimRight(node, "/") + readPath + blobID
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
