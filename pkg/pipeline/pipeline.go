// Package pipeline chains the key-release network, the storage fanout and
// the ledger gateway into the two user-facing operations: Publish
// (encrypt, upload, hand identifiers back for anchoring) and Access (fetch,
// download, decrypt under entitlement check). Each stage failure aborts the
// run with a stage-tagged error; nothing is committed to the ledger before
// a publish completes, so there is never anything to roll back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vaultbay/vaultbay/pkg/codec"
	"github.com/vaultbay/vaultbay/pkg/fanout"
	"github.com/vaultbay/vaultbay/pkg/keyrelease"
	"github.com/vaultbay/vaultbay/pkg/ledger"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageCompress     Stage = "compress"
	StageEncrypt      Stage = "encrypt"
	StageUpload       Stage = "upload"
	StageFetchListing Stage = "fetch-listing"
	StageDownload     Stage = "download"
	StageDecompress   Stage = "decompress"
)

// StageError tags a failure with the stage it happened in. Decrypt-stage
// failures are the exception: they pass through unwrapped so callers can
// tell an entitlement denial from a credential problem directly.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Config struct {
	Fanout     *fanout.Client
	KeyRelease *keyrelease.Client
	Ledger     *ledger.Gateway
	// PackageID parameterizes the decrypt-time verification script.
	PackageID string
	// Epochs is the storage duration passed to the fanout on publish.
	Epochs int
	// Compress runs plaintext through xz before encryption and reverses it
	// after decryption. Both sides of a marketplace must agree on it.
	Compress bool
	Logger   *logrus.Logger
}

type Pipeline struct {
	config Config
	log    *logrus.Logger
}

func New(config Config) (*Pipeline, error) {
	if config.Fanout == nil || config.KeyRelease == nil || config.Ledger == nil {
		return nil, errors.New("pipeline: fanout, key-release and ledger clients are all required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Pipeline{config: config, log: config.Logger}, nil
}

// PublishResult carries the identifiers the caller anchors on the ledger
// via BuildCreateListingTx and the wallet layer.
type PublishResult struct {
	BlobID  string
	KeyHash string
}

// Publish encrypts content under the key-release policy and stores the
// ciphertext across the fanout. The ciphertext travels as hex text, the
// normalization the storage network expects.
func (p *Pipeline) Publish(ctx context.Context, content []byte) (*PublishResult, error) {
	if len(content) == 0 {
		return nil, &ledger.ValidationError{Field: "content", Reason: "empty"}
	}

	payload := content
	if p.config.Compress {
		compressed, err := compressWithLzma(content)
		if err != nil {
			return nil, &StageError{Stage: StageCompress, Err: err}
		}
		payload = compressed
	}

	encrypted, err := p.config.KeyRelease.Encrypt(ctx, payload)
	if err != nil {
		return nil, &StageError{Stage: StageEncrypt, Err: err}
	}

	blobID, err := p.config.Fanout.Upload(ctx, []byte(encrypted.CiphertextHex), p.config.Epochs)
	if err != nil {
		return nil, &StageError{Stage: StageUpload, Err: err}
	}

	p.log.WithFields(logrus.Fields{
		"blobId": blobID,
		"bytes":  len(content),
	}).Info("content published")
	return &PublishResult{BlobID: blobID, KeyHash: encrypted.KeyHash}, nil
}

// Access fetches a listing, downloads its ciphertext and asks the
// key-release network for the plaintext. The network grants only if the
// requester holds a valid entitlement pass; that decision is never made
// locally. Either verified plaintext or an error — no partial result.
func (p *Pipeline) Access(ctx context.Context, listingID, requesterAddress string) ([]byte, error) {
	listing, err := p.config.Ledger.FetchListing(ctx, listingID)
	if err != nil {
		return nil, &StageError{Stage: StageFetchListing, Err: err}
	}

	blob, err := p.config.Fanout.Download(ctx, listing.BlobID)
	if err != nil {
		return nil, &StageError{Stage: StageDownload, Err: err}
	}

	ciphertextHex := codec.Base64ToHex(strings.TrimSpace(string(blob)))
	plaintext, err := p.config.KeyRelease.Decrypt(ctx, ciphertextHex, listing.KeyHash, keyrelease.DecryptParams{
		ListingID:   listingID,
		PackageID:   p.config.PackageID,
		UserAddress: requesterAddress,
	})
	if err != nil {
		// surfaced verbatim: EntitlementError and AuthError must stay
		// distinguishable at the UI boundary
		return nil, err
	}

	if p.config.Compress {
		plaintext, err = decompressWithLzma(plaintext)
		if err != nil {
			return nil, &StageError{Stage: StageDecompress, Err: err}
		}
	}
	return plaintext, nil
}
