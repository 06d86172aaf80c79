package signing

import "errors"

// Signature errors
var (
	// ErrNoSecret is returned when attempting to sign without a configured secret
	ErrNoSecret = errors.New("signing: no secret configured")

	// ErrMissingSignature is returned when verifying an empty signature
	ErrMissingSignature = errors.New("signing: missing signature")

	// ErrInvalidSignature is returned when the signature does not match the parameters
	ErrInvalidSignature = errors.New("signing: invalid signature")

	// ErrUnknownHash is returned by ParseHash for unsupported hash names
	ErrUnknownHash = errors.New("signing: unknown hash, use sha256 or sha1")
)

// IsVerificationError returns true if the error came from signature verification
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMissingSignature) || errors.Is(err, ErrInvalidSignature)
}
