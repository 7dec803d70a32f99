package ledger

import "fmt"

// ValidationError is a local precondition failure caught before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}

// MoveCall is a serializable transaction description. The gateway never
// signs or submits; the wallet layer does both.
type MoveCall struct {
	PackageID string        `json:"packageId"`
	Module    string        `json:"module"`
	Function  string        `json:"function"`
	TypeArgs  []string      `json:"typeArguments"`
	Args      []interface{} `json:"arguments"`
}

const marketModule = "market"

// BuildCreateListingTx anchors a freshly published blob: storage locator,
// key-derivation hash, pricing curve and MIME type. Called once per
// publish; the anchored identifiers are never mutated afterwards.
func (g *Gateway) BuildCreateListingTx(blobID, keyHash string, basePrice, priceSlope uint64, mimeType string) (*MoveCall, error) {
	if blobID == "" {
		return nil, &ValidationError{Field: "blobId", Reason: "empty"}
	}
	if keyHash == "" {
		return nil, &ValidationError{Field: "keyDerivationHash", Reason: "empty"}
	}
	if basePrice == 0 {
		return nil, &ValidationError{Field: "basePrice", Reason: "must be positive"}
	}
	return &MoveCall{
		PackageID: g.config.PackageID,
		Module:    marketModule,
		Function:  "create_listing",
		Args:      []interface{}{blobID, keyHash, basePrice, priceSlope, mimeType},
	}, nil
}

// BuildRentAccessTx rents time-bound access to a listing. maxPrice is the
// slippage bound: the contract aborts if the authoritative price at
// execution time exceeds it, so a price drift between display and
// execution can never overcharge the renter.
func (g *Gateway) BuildRentAccessTx(listingID string, durationEpochs, maxPrice uint64) (*MoveCall, error) {
	if listingID == "" {
		return nil, &ValidationError{Field: "listingId", Reason: "empty"}
	}
	if durationEpochs == 0 {
		return nil, &ValidationError{Field: "durationEpochs", Reason: "must be positive"}
	}
	if maxPrice == 0 {
		return nil, &ValidationError{Field: "maxPrice", Reason: "must be positive"}
	}
	return &MoveCall{
		PackageID: g.config.PackageID,
		Module:    marketModule,
		Function:  "rent_access",
		Args:      []interface{}{listingID, durationEpochs, maxPrice},
	}, nil
}

// BuildWithdrawTx moves accumulated rental proceeds to the seller.
func (g *Gateway) BuildWithdrawTx(listingID string, amount uint64) (*MoveCall, error) {
	if listingID == "" {
		return nil, &ValidationError{Field: "listingId", Reason: "empty"}
	}
	if amount == 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return &MoveCall{
		PackageID: g.config.PackageID,
		Module:    marketModule,
		Function:  "withdraw",
		Args:      []interface{}{listingID, amount},
	}, nil
}

// BuildPauseTx stops new rentals on a listing; existing passes keep
// working until they expire.
func (g *Gateway) BuildPauseTx(listingID string) (*MoveCall, error) {
	if listingID == "" {
		return nil, &ValidationError{Field: "listingId", Reason: "empty"}
	}
	return &MoveCall{
		PackageID: g.config.PackageID,
		Module:    marketModule,
		Function:  "pause",
		Args:      []interface{}{listingID},
	}, nil
}

// BuildResumeTx re-opens a paused listing.
func (g *Gateway) BuildResumeTx(listingID string) (*MoveCall, error) {
	if listingID == "" {
		return nil, &ValidationError{Field: "listingId", Reason: "empty"}
	}
	return &MoveCall{
		PackageID: g.config.PackageID,
		Module:    marketModule,
		Function:  "resume",
		Args:      []interface{}{listingID},
	}, nil
}
