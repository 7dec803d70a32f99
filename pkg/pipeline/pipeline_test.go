package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultbay/vaultbay/pkg/fanout"
	"github.com/vaultbay/vaultbay/pkg/keyrelease"
	"github.com/vaultbay/vaultbay/pkg/ledger"
	"github.com/vaultbay/vaultbay/pkg/localstore"
	"github.com/vaultbay/vaultbay/pkg/session"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// harness wires a full pipeline against mock services.
type harness struct {
	pipeline *Pipeline

	decryptDeny bool
	decryptHits atomic.Int64
	lastParams  map[string]string
	ledgerHits  atomic.Int64
}

// storageNode serves both the store and the read endpoint for blob b1 and
// captures the last uploaded body.
func storageNode(t *testing.T, captured *[]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/store", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			*captured = body
		}
		w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"b1"}}}`))
	})
	mux.HandleFunc("/v1/blobs/b1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("68656c6c6f"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHarness(t *testing.T, publishers, aggregators []string) *harness {
	t.Helper()
	h := &harness{}

	// mock key-release network: encrypt echoes "hello" as base64, decrypt
	// releases it when not denying
	keyNet := http.NewServeMux()
	keyNet.HandleFunc("/v1/handshake", func(w http.ResponseWriter, r *http.Request) {})
	keyNet.HandleFunc("/v1/encrypt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ciphertext":"aGVsbG8=","dataHash":"h1"}`))
	})
	keyNet.HandleFunc("/v1/decrypt", func(w http.ResponseWriter, r *http.Request) {
		h.decryptHits.Add(1)
		var req struct {
			Ciphertext string            `json:"ciphertext"`
			JSParams   map[string]string `json:"jsParams"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		h.lastParams = req.JSParams
		if h.decryptDeny {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errorCode":"entitlement_denied","message":"no valid pass"}`))
			return
		}
		require.Equal(t, "68656c6c6f", req.Ciphertext)
		w.Write([]byte(`{"plaintext":"` + base64.StdEncoding.EncodeToString([]byte("hello")) + `"}`))
	})
	keySrv := httptest.NewServer(keyNet)
	t.Cleanup(keySrv.Close)

	// mock ledger: one listing pointing at blob b1
	ledgerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ledgerHits.Add(1)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"data":{"objectId":"0xl1","content":{"fields":{
			"seller":"0xseller","blob_id":"b1","key_derivation_hash":"h1",
			"base_price":"100","is_active":true
		}}}}}`))
	}))
	t.Cleanup(ledgerSrv.Close)

	sessions, err := session.NewManager(session.Config{
		Store:  localstore.NewMemoryStore(),
		Origin: "https://market.example",
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	keyClient, err := keyrelease.New(keyrelease.Config{
		Endpoint:            keySrv.URL,
		Chain:               "testnet",
		Sessions:            sessions,
		Logger:              quietLogger(),
		ConnectPollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	fanoutClient, err := fanout.New(fanout.Config{
		Publishers:  publishers,
		Aggregators: aggregators,
		Timeout:     2 * time.Second,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	gateway, err := ledger.New(ledger.Config{
		RPCURL:        ledgerSrv.URL,
		PackageID:     "0xpkg",
		MarketAddress: "0xmarket",
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	p, err := New(Config{
		Fanout:     fanoutClient,
		KeyRelease: keyClient,
		Ledger:     gateway,
		PackageID:  "0xpkg",
		Epochs:     3,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

// Scenario A: publish "hello" through mock key-release and storage; the
// bytes on the storage wire are the hex text of the decoded base64
// ciphertext.
func TestPublish_HappyPath(t *testing.T) {
	var captured []byte
	node := storageNode(t, &captured)
	h := newHarness(t, []string{node.URL}, []string{node.URL})

	result, err := h.pipeline.Publish(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "b1", result.BlobID)
	assert.Equal(t, "h1", result.KeyHash)
	assert.Equal(t, []byte("68656c6c6f"), captured)
}

// Scenario B: access with a granted entitlement returns the plaintext.
func TestAccess_Granted(t *testing.T) {
	node := storageNode(t, nil)
	h := newHarness(t, nil, []string{node.URL})

	plaintext, err := h.pipeline.Access(context.Background(), "0xl1", "0xrenter")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
	assert.Equal(t, "0xl1", h.lastParams["listingId"])
	assert.Equal(t, "0xpkg", h.lastParams["packageId"])
	assert.Equal(t, "0xrenter", h.lastParams["userAddress"])
}

// Scenario C: a denied entitlement surfaces as EntitlementError with no
// plaintext and no retry.
func TestAccess_Denied(t *testing.T) {
	node := storageNode(t, nil)
	h := newHarness(t, nil, []string{node.URL})
	h.decryptDeny = true

	plaintext, err := h.pipeline.Access(context.Background(), "0xl1", "0xrenter")
	assert.Nil(t, plaintext)
	var entErr *keyrelease.EntitlementError
	require.ErrorAs(t, err, &entErr)
	assert.Equal(t, int64(1), h.decryptHits.Load())
}

// Scenario D: with every storage node down, publish fails in the upload
// stage and never reaches the ledger.
func TestPublish_AllStorageNodesDown(t *testing.T) {
	h := newHarness(t, []string{"http://127.0.0.1:1", "http://127.0.0.1:2"}, nil)

	_, err := h.pipeline.Publish(context.Background(), []byte("hello"))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageUpload, stageErr.Stage)

	var allFailed *fanout.AllNodesFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Errors, 2)

	assert.Equal(t, int64(0), h.ledgerHits.Load(), "no anchoring attempted")
}

func TestPublish_EmptyContentRejectedBeforeNetwork(t *testing.T) {
	h := newHarness(t, []string{"http://127.0.0.1:1"}, nil)

	_, err := h.pipeline.Publish(context.Background(), nil)
	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "content", vErr.Field)
}

func TestPublish_StageErrorTagsEncryptFailures(t *testing.T) {
	// key-release endpoint unreachable: the failure must carry the encrypt
	// stage tag
	sessions, err := session.NewManager(session.Config{
		Store:  localstore.NewMemoryStore(),
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	keyClient, err := keyrelease.New(keyrelease.Config{
		Endpoint: "http://127.0.0.1:1",
		Sessions: sessions,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	fanoutClient, err := fanout.New(fanout.Config{
		Publishers: []string{"http://127.0.0.1:2"},
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	gateway, err := ledger.New(ledger.Config{
		RPCURL:    "http://127.0.0.1:3",
		PackageID: "0xpkg",
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	p, err := New(Config{
		Fanout:     fanoutClient,
		KeyRelease: keyClient,
		Ledger:     gateway,
		PackageID:  "0xpkg",
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), []byte("hello"))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageEncrypt, stageErr.Stage)
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte("hello hello hello hello hello hello")
	compressed, err := compressWithLzma(data)
	require.NoError(t, err)
	restored, err := decompressWithLzma(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, restored)
}
