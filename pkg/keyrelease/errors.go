package keyrelease

import "fmt"

// AuthError means the network rejected the session attestation. This is a
// credential problem, not an entitlement denial; the decrypt path recovers
// from it once by regenerating the session.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return "keyrelease: session attestation rejected"
	}
	return fmt.Sprintf("keyrelease: session attestation rejected: %s", e.Reason)
}

// EntitlementError means the verification script found no valid pass for
// the requester. Never retried: the caller has not paid or the pass
// expired.
type EntitlementError struct {
	Reason string
}

func (e *EntitlementError) Error() string {
	if e.Reason == "" {
		return "keyrelease: entitlement denied"
	}
	return fmt.Sprintf("keyrelease: entitlement denied: %s", e.Reason)
}
