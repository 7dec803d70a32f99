// Package session maintains the locally-held signing identity and the
// time-boxed attestation presented to the key-release network.
//
// The identity (an ed25519 keypair) is created once and never expires; only
// the session, a signed challenge statement with a seven-day lifetime, is
// rotated. A session is reused unchanged until its expiry; it is never
// refreshed early. On rejection by the key-release network the session is
// invalidated explicitly, which forces a fresh one on the next use.
package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vaultbay/vaultbay/pkg/localstore"
)

const (
	identityStoreKey = "vaultbay/identity"
	sessionStoreKey  = "vaultbay/session"

	// Duration is the session lifetime.
	Duration = 7 * 24 * time.Hour

	authStatement   = "I authorize this application to request decryption keys on my behalf."
	protocolVersion = "1"
)

// Session is the persisted attestation. All four fields together form the
// credential: the signature must verify against SignedMessage and Address.
type Session struct {
	Signature     string    `json:"signature"`
	Address       string    `json:"address"`
	Expiry        time.Time `json:"expiry"`
	SignedMessage string    `json:"signedMessage"`
}

// Valid reports whether the session is usable at the given time: not yet
// expired and internally consistent.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.Expiry) && Verify(s)
}

// Verify checks that Signature verifies against SignedMessage under the
// public key encoded in Address.
func Verify(s *Session) bool {
	pub, err := hex.DecodeString(strings.TrimPrefix(s.Address, "0x"))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(s.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(s.SignedMessage), sig)
}

type identityRecord struct {
	PrivateKey []byte `json:"privateKey"`
}

type Config struct {
	Store localstore.Store
	// Origin is the requesting origin embedded in the challenge statement.
	Origin string
	Logger *logrus.Logger
	// Now is the clock; nil means time.Now. Injected by tests.
	Now func() time.Time
}

// Manager owns the identity and session records in the local store.
//
// Concurrent EnsureSession calls can race when no valid session exists;
// both create and persist one and the last writer wins. Both results
// verify independently, so requests already carrying the earlier one are
// unaffected. No lock is taken for this.
type Manager struct {
	store  localstore.Store
	origin string
	log    *logrus.Logger
	now    func() time.Time
}

func NewManager(config Config) (*Manager, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Manager{
		store:  config.Store,
		origin: config.Origin,
		log:    config.Logger,
		now:    config.Now,
	}, nil
}

// Identity loads the signing key from the store, generating and persisting
// a fresh one on first use. The identity is stable across sessions.
func (m *Manager) Identity() (ed25519.PrivateKey, error) {
	raw, ok, err := m.store.Get(identityStoreKey)
	if err != nil {
		return nil, fmt.Errorf("session: reading identity: %w", err)
	}
	if ok {
		var rec identityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("session: corrupt identity record: %w", err)
		}
		if len(rec.PrivateKey) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("session: identity record has wrong key size %d", len(rec.PrivateKey))
		}
		return ed25519.PrivateKey(rec.PrivateKey), nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("session: generating identity: %w", err)
	}
	rec, err := json.Marshal(identityRecord{PrivateKey: priv})
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(identityStoreKey, rec); err != nil {
		return nil, fmt.Errorf("session: persisting identity: %w", err)
	}
	m.log.Info("generated new signing identity")
	return priv, nil
}

// Address returns the public identity as 0x-prefixed lowercase hex.
func (m *Manager) Address() (string, error) {
	priv, err := m.Identity()
	if err != nil {
		return "", err
	}
	return addressOf(priv), nil
}

func addressOf(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return "0x" + hex.EncodeToString(pub)
}

// EnsureSession returns the persisted session when it is still valid, and
// creates, signs and persists a new one otherwise. A valid session is
// returned bit-identical, with no signing and no store write.
func (m *Manager) EnsureSession() (*Session, error) {
	raw, ok, err := m.store.Get(sessionStoreKey)
	if err != nil {
		return nil, fmt.Errorf("session: reading session: %w", err)
	}
	if ok {
		var sess Session
		if err := json.Unmarshal(raw, &sess); err == nil && sess.Valid(m.now()) {
			return &sess, nil
		}
		// expired or corrupt; fall through and replace it
	}

	priv, err := m.Identity()
	if err != nil {
		return nil, err
	}

	// UTC also strips the monotonic reading so the struct round-trips
	// through JSON unchanged.
	now := m.now().UTC()
	expiry := now.Add(Duration)
	message := strings.Join([]string{
		"address: " + addressOf(priv),
		authStatement,
		"origin: " + m.origin,
		"version: " + protocolVersion,
		"nonce: " + uuid.NewString(),
		"issued-at: " + now.UTC().Format(time.RFC3339),
		"expires-at: " + expiry.UTC().Format(time.RFC3339),
	}, "\n")

	sig := ed25519.Sign(priv, []byte(message))
	sess := &Session{
		Signature:     base64.StdEncoding.EncodeToString(sig),
		Address:       addressOf(priv),
		Expiry:        expiry,
		SignedMessage: message,
	}

	encoded, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(sessionStoreKey, encoded); err != nil {
		return nil, fmt.Errorf("session: persisting session: %w", err)
	}
	m.log.WithFields(logrus.Fields{
		"address": sess.Address,
		"expiry":  sess.Expiry,
	}).Info("created new session")
	return sess, nil
}

// Invalidate removes the persisted session, leaving the identity in place.
// Invalidating when no session exists is a no-op.
func (m *Manager) Invalidate() error {
	if err := m.store.Delete(sessionStoreKey); err != nil {
		return fmt.Errorf("session: removing session: %w", err)
	}
	return nil
}
