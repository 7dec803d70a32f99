// Package proxy fronts the storage fanout for browser clients that cannot
// reach the storage nodes directly (payload size limits, CORS, mixed
// content). It accepts the payload over one POST endpoint, runs the same
// ordered failover as the fanout client and relays the storage network's
// native JSON response.
package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/vaultbay/vaultbay/pkg/fanout"
)

const uploadPath = "/api/upload"

type Config struct {
	Fanout *fanout.Client
	// Epochs is the storage duration requested for proxied uploads.
	Epochs int
	Logger *logrus.Logger
}

type Handler struct {
	fanout *fanout.Client
	epochs int
	log    *logrus.Logger
}

func NewHandler(config Config) (*Handler, error) {
	if config.Fanout == nil {
		return nil, errors.New("proxy: fanout client is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Handler{
		fanout: config.Fanout,
		epochs: config.Epochs,
		log:    config.Logger,
	}, nil
}

// Mux returns a mux with the upload endpoint mounted.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(uploadPath, h)
	return mux
}

type errorBody struct {
	Error   string             `json:"error"`
	Details []fanout.NodeError `json:"details,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "empty body"})
		return
	}

	// The payload is relayed verbatim: hex-encoded ciphertext from the
	// pipeline or raw bytes from other callers, the storage network takes
	// either.
	raw, err := h.fanout.UploadRaw(r.Context(), payload, h.epochs)
	if err != nil {
		var allFailed *fanout.AllNodesFailedError
		if errors.As(err, &allFailed) {
			h.log.WithField("nodes", len(allFailed.Errors)).Warn("proxied upload failed on all nodes")
			writeJSON(w, http.StatusServiceUnavailable, errorBody{
				Error:   "all storage nodes failed",
				Details: allFailed.Errors,
			})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
