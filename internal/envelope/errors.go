package envelope

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyUnavailable is returned when no server public key is loaded.
	ErrKeyUnavailable = errors.New("public key unavailable")

	// ErrEncryption is returned when a cipher primitive rejects its input.
	ErrEncryption = errors.New("encryption failed")

	// ErrMalformed is returned when an envelope violates the wire invariants.
	ErrMalformed = errors.New("malformed envelope")
)

// Error carries diagnostic flags for a failed seal. It never holds plaintext.
type Error struct {
	Op           string
	HadPublicKey bool
	KeyBits      int
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("envelope %s (had public key: %t, key bits: %d): %v", e.Op, e.HadPublicKey, e.KeyBits, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LogAttrs returns the error's diagnostic flags as slog key/value pairs.
func (e *Error) LogAttrs() []any {
	return []any{"op", e.Op, "had_public_key", e.HadPublicKey, "key_bits", e.KeyBits}
}
