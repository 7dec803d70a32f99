package ledger

import (
	"fmt"
	"time"
)

// Listing mirrors the on-chain listing record. The pipeline writes BlobID
// and KeyHash once at creation and never mutates them.
type Listing struct {
	ID            string
	Seller        string
	BlobID        string
	KeyHash       string
	BasePrice     uint64
	PriceSlope    uint64
	ActiveRentals uint64
	MimeType      string
	Active        bool
}

// CurrentPrice is the display price: base plus slope times the number of
// currently-active rentals. It is a read model only; the contract
// recomputes and enforces the authoritative price at execution time.
func (l Listing) CurrentPrice() uint64 {
	return l.BasePrice + l.PriceSlope*l.ActiveRentals
}

// EntitlementPass is a time-limited right to decrypt one listing's content,
// owned by one address. ExpiresAtMs is milliseconds since the epoch, the
// encoding the contract uses.
type EntitlementPass struct {
	ID          string
	ListingID   string
	Owner       string
	ExpiresAtMs uint64
}

// Valid reports whether the pass grants access at the given time.
func (p EntitlementPass) Valid(now time.Time) bool {
	return p.ExpiresAtMs > uint64(now.UnixMilli())
}

// decodeListing is the one place listing fields are read. Ledger schemas
// evolve, so missing optional fields default to zero values instead of
// erroring. Field names are the authoritative on-chain snake_case ones.
func decodeListing(objectID string, fields map[string]interface{}) Listing {
	return Listing{
		ID:            objectID,
		Seller:        strField(fields, "seller"),
		BlobID:        strField(fields, "blob_id"),
		KeyHash:       strField(fields, "key_derivation_hash"),
		BasePrice:     u64Field(fields, "base_price"),
		PriceSlope:    u64Field(fields, "price_slope"),
		ActiveRentals: u64Field(fields, "active_rentals"),
		MimeType:      strField(fields, "mime_type"),
		Active:        boolField(fields, "is_active"),
	}
}

// decodeEntitlementPass is the one place pass fields are read.
func decodeEntitlementPass(objectID string, fields map[string]interface{}) EntitlementPass {
	return EntitlementPass{
		ID:          objectID,
		ListingID:   strField(fields, "listing_id"),
		Owner:       strField(fields, "owner"),
		ExpiresAtMs: u64Field(fields, "expires_at"),
	}
}

func strField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// u64Field accepts both native JSON numbers and the string encoding the
// ledger uses for u64 values.
func u64Field(fields map[string]interface{}, name string) uint64 {
	switch v := fields[name].(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case string:
		var n uint64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func boolField(fields map[string]interface{}, name string) bool {
	if v, ok := fields[name].(bool); ok {
		return v
	}
	return false
}
