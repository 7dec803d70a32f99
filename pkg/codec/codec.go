// Package codec converts payloads between binary, hex and base64
// representations. The storage network addresses blob content as hex text
// while the key-release network hands ciphertext back as base64, so every
// payload is normalized to hex before it is stored or re-submitted.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// BytesToHex encodes b as lowercase hex, two digits per byte.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToBytes decodes a hex string produced by BytesToHex.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// IsHex reports whether s is a plausible hex payload: non-empty, even
// length and hex digits only.
func IsHex(s string) bool {
	return len(s) > 0 && len(s)%2 == 0 && hexPattern.MatchString(s)
}

// Base64ToHex normalizes a base64 payload to hex. Whitespace and a data-URI
// prefix ("data:...,") are stripped first. Input that already looks like hex
// is returned unchanged so an already-normalized payload is never decoded a
// second time. Input that does not decode as standard base64 is returned
// as-is; callers must treat the result as best-effort.
func Base64ToHex(s string) string {
	cleaned := strings.Join(strings.Fields(s), "")
	if i := strings.LastIndex(cleaned, ","); i >= 0 {
		cleaned = cleaned[i+1:]
	}
	if IsHex(cleaned) {
		return cleaned
	}
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return s
	}
	return hex.EncodeToString(raw)
}
