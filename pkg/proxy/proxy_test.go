package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultbay/vaultbay/pkg/fanout"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newHandler(t *testing.T, publishers []string) *Handler {
	t.Helper()
	client, err := fanout.New(fanout.Config{
		Publishers: publishers,
		Timeout:    2 * time.Second,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	h, err := NewHandler(Config{Fanout: client, Epochs: 3, Logger: quietLogger()})
	require.NoError(t, err)
	return h
}

func TestUpload_RelaysNativeResponse(t *testing.T) {
	native := `{"newlyCreated":{"blobObject":{"blobId":"b1"}}}`
	var gotBody []byte
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(native))
	}))
	t.Cleanup(node.Close)

	h := newHandler(t, []string{node.URL})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("68656c6c6f")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, native, rec.Body.String())
	assert.Equal(t, []byte("68656c6c6f"), gotBody, "payload relayed verbatim")
}

func TestUpload_AllNodesFailedIs503WithDetails(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(node.Close)

	h := newHandler(t, []string{node.URL, "http://127.0.0.1:1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("x")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Error   string `json:"error"`
		Details []struct {
			Node   string `json:"node"`
			Status int    `json:"status"`
			Err    string `json:"error"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "all storage nodes failed", body.Error)
	require.Len(t, body.Details, 2)
	assert.Equal(t, node.URL, body.Details[0].Node)
	assert.Equal(t, http.StatusInternalServerError, body.Details[0].Status)
}

func TestUpload_EmptyBodyIs400(t *testing.T) {
	h := newHandler(t, []string{"http://127.0.0.1:1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_NonPostIs405(t *testing.T) {
	h := newHandler(t, []string{"http://127.0.0.1:1"})
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/upload", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestMux_MountsUploadPath(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alreadyCertified":{"blobId":"b1"}}`))
	}))
	t.Cleanup(node.Close)

	h := newHandler(t, []string{node.URL})
	srv := httptest.NewServer(h.Mux())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/upload", "application/octet-stream", bytes.NewBufferString("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
