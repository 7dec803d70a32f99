// Package keyrelease talks to the remote threshold network that custodies
// content keys. Encryption binds a payload to an access policy; decryption
// ships a verification script that the network itself executes against the
// ledger before any key share is released. The client never evaluates
// entitlement locally.
package keyrelease

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vaultbay/vaultbay/pkg/codec"
	"github.com/vaultbay/vaultbay/pkg/session"
)

const (
	// DefaultConnectPollInterval is how often a caller waiting on another
	// caller's in-flight connection attempt re-checks its outcome.
	DefaultConnectPollInterval = 100 * time.Millisecond

	handshakePath = "/v1/handshake"
	encryptPath   = "/v1/encrypt"
	decryptPath   = "/v1/decrypt"
)

// EncryptedPayload is the unit the pipeline moves: ciphertext normalized to
// hex plus the opaque key-derivation reference the network needs to
// reconstruct the symmetric key at decrypt time. Immutable once created.
type EncryptedPayload struct {
	CiphertextHex string
	KeyHash       string
}

// DecryptParams parameterize the verification script executed by the
// network: which listing, under which ledger package, for which requester.
type DecryptParams struct {
	ListingID   string
	PackageID   string
	UserAddress string
}

type Config struct {
	Endpoint string
	// Chain names the ledger network the verification script queries.
	Chain    string
	Sessions *session.Manager
	Logger   *logrus.Logger
	// ConnectPollInterval overrides DefaultConnectPollInterval; tests use a
	// shorter one.
	ConnectPollInterval time.Duration
	HTTPClient          *http.Client
}

// Client is safe for concurrent use. Connection establishment is
// deduplicated: concurrent callers all observe the outcome of the single
// in-flight handshake instead of racing their own.
type Client struct {
	config     Config
	httpClient *http.Client
	log        *logrus.Logger

	mu         sync.Mutex
	connected  bool
	connecting bool
	lastErr    error
}

func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, errors.New("keyrelease: endpoint is required")
	}
	if config.Sessions == nil {
		return nil, errors.New("keyrelease: session manager is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.ConnectPollInterval <= 0 {
		config.ConnectPollInterval = DefaultConnectPollInterval
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		log:        config.Logger,
	}, nil
}

// Connect performs the network handshake once. Repeat calls after a success
// return immediately; callers arriving while an attempt is in flight poll
// cooperatively until that attempt resolves and share its outcome. A failed
// attempt leaves the client disconnected, so a later call starts over.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return c.awaitConnect(ctx)
	}
	c.connecting = true
	c.mu.Unlock()

	err := c.handshake(ctx)

	c.mu.Lock()
	c.connecting = false
	c.connected = err == nil
	c.lastErr = err
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("keyrelease: connect: %w", err)
	}
	c.log.WithField("endpoint", c.config.Endpoint).Info("connected to key-release network")
	return nil
}

func (c *Client) awaitConnect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.ConnectPollInterval):
		}
		c.mu.Lock()
		if !c.connecting {
			err := c.lastErr
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("keyrelease: connect: %w", err)
			}
			return nil
		}
		c.mu.Unlock()
	}
}

func (c *Client) handshake(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.config.Endpoint, "/")+handshakePath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("handshake status %d", resp.StatusCode)
	}
	return nil
}

type authSig struct {
	Signature     string `json:"signature"`
	Address       string `json:"address"`
	SignedMessage string `json:"signedMessage"`
}

func toAuthSig(s *session.Session) authSig {
	return authSig{
		Signature:     s.Signature,
		Address:       s.Address,
		SignedMessage: s.SignedMessage,
	}
}

// accessControlCondition is the descriptor attached at encrypt time. It is
// deliberately trivial ("caller presents a self-consistent signature"); the
// real gate is the verification script run at decrypt time.
type accessControlCondition struct {
	Type string `json:"type"`
}

type encryptRequest struct {
	AccessControlConditions []accessControlCondition `json:"accessControlConditions"`
	Data                    string                   `json:"data"`
	AuthSig                 authSig                  `json:"authSig"`
	Chain                   string                   `json:"chain"`
}

type encryptResponse struct {
	Ciphertext string `json:"ciphertext"`
	DataHash   string `json:"dataHash"`
}

type scriptParams struct {
	UserAddress string `json:"userAddress"`
	ListingID   string `json:"listingId"`
	PackageID   string `json:"packageId"`
}

type decryptRequest struct {
	Ciphertext string       `json:"ciphertext"`
	DataHash   string       `json:"dataHash"`
	Script     string       `json:"script"`
	JSParams   scriptParams `json:"jsParams"`
	AuthSig    authSig      `json:"authSig"`
	Chain      string       `json:"chain"`
}

type decryptResponse struct {
	Plaintext string `json:"plaintext"`
}

type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// Encrypt submits plaintext to the network and returns the ciphertext
// normalized to hex together with the key-derivation hash. It establishes
// the connection and a session as needed; it never touches ledger state.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte) (*EncryptedPayload, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("keyrelease: empty plaintext")
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	sess, err := c.config.Sessions.EnsureSession()
	if err != nil {
		return nil, err
	}

	reqBody := encryptRequest{
		AccessControlConditions: []accessControlCondition{{Type: "selfSignature"}},
		Data:                    base64.StdEncoding.EncodeToString(plaintext),
		AuthSig:                 toAuthSig(sess),
		Chain:                   c.config.Chain,
	}
	var respBody encryptResponse
	if err := c.post(ctx, encryptPath, reqBody, &respBody); err != nil {
		return nil, err
	}
	if respBody.Ciphertext == "" || respBody.DataHash == "" {
		return nil, errors.New("keyrelease: encrypt response incomplete")
	}
	return &EncryptedPayload{
		CiphertextHex: codec.Base64ToHex(respBody.Ciphertext),
		KeyHash:       respBody.DataHash,
	}, nil
}

// Decrypt asks the network to release the plaintext for ciphertextHex. The
// request embeds the entitlement verification script; the network runs it
// against the ledger and only reconstructs the key on a grant.
//
// A rejection of the session attestation (AuthError) is recovered exactly
// once: the local session is invalidated and the whole call retried with a
// fresh one. A second rejection, and any other failure including an
// entitlement denial, surfaces to the caller unretried.
func (c *Client) Decrypt(ctx context.Context, ciphertextHex, keyHash string, params DecryptParams) ([]byte, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	authFailures := 0
	for {
		sess, err := c.config.Sessions.EnsureSession()
		if err != nil {
			return nil, err
		}
		plaintext, err := c.decryptOnce(ctx, ciphertextHex, keyHash, params, sess)
		var authErr *AuthError
		if errors.As(err, &authErr) && authFailures == 0 {
			authFailures++
			c.log.WithField("address", sess.Address).Warn("session rejected by key-release network, regenerating once")
			if invErr := c.config.Sessions.Invalidate(); invErr != nil {
				return nil, invErr
			}
			continue
		}
		return plaintext, err
	}
}

func (c *Client) decryptOnce(ctx context.Context, ciphertextHex, keyHash string, params DecryptParams, sess *session.Session) ([]byte, error) {
	reqBody := decryptRequest{
		Ciphertext: codec.Base64ToHex(ciphertextHex),
		DataHash:   keyHash,
		Script:     entitlementScript,
		JSParams: scriptParams{
			UserAddress: params.UserAddress,
			ListingID:   params.ListingID,
			PackageID:   params.PackageID,
		},
		AuthSig: toAuthSig(sess),
		Chain:   c.config.Chain,
	}
	var respBody decryptResponse
	if err := c.post(ctx, decryptPath, reqBody, &respBody); err != nil {
		return nil, err
	}
	plaintext, err := base64.StdEncoding.DecodeString(respBody.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("keyrelease: malformed plaintext in response: %w", err)
	}
	return plaintext, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.config.Endpoint, "/")+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("keyrelease: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("keyrelease: reading %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyError(resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

// classifyError maps a failure response onto the error taxonomy. The
// network reports a machine-readable errorCode; the HTTP status is the
// fallback for older deployments that only set the status line.
func classifyError(status int, body []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)

	switch parsed.ErrorCode {
	case "invalid_auth":
		return &AuthError{Reason: parsed.Message}
	case "entitlement_denied":
		return &EntitlementError{Reason: parsed.Message}
	}
	switch status {
	case http.StatusUnauthorized:
		return &AuthError{Reason: parsed.Message}
	case http.StatusForbidden:
		return &EntitlementError{Reason: parsed.Message}
	}
	if parsed.Message != "" {
		return fmt.Errorf("keyrelease: request failed with status %d: %s", status, parsed.Message)
	}
	return fmt.Errorf("keyrelease: request failed with status %d", status)
}
