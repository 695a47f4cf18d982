// Package envelope implements the hybrid RSA-OAEP / AES-256-CBC envelope used to
// send short PII values (resident numbers, account numbers) to the claim backend.
//
// # Wire format
//
// An envelope is three standard-Base64 strings:
//
//	{"encryptedKey": "...", "encryptedData": "...", "iv": "..."}
//
// encryptedKey is a fresh 32-byte AES key sealed with RSA-OAEP (SHA-256 for
// both the OAEP hash and MGF1, empty label). encryptedData is the UTF-8
// plaintext under AES-256-CBC with PKCS#7 padding. iv is 16 bytes.
//
// Every Seal draws a new key and iv, so an envelope is bound to exactly one
// plaintext. Envelopes are values: once produced they are sent or dropped.
package envelope

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize is the CBC initialisation vector length.
	IVSize = aes.BlockSize
)

// Envelope is the sealed form of one PII value.
type Envelope struct {
	EncryptedKey  string `json:"encryptedKey"`
	EncryptedData string `json:"encryptedData"`
	IV            string `json:"iv"`
}

// Parse decodes and validates an envelope received from an untrusted caller.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the decoded sizes: iv is exactly 16 bytes, data is a
// non-empty multiple of the block size and the sealed key is present.
func (e Envelope) Validate() error {
	key, err := decodeField("encryptedKey", e.EncryptedKey)
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: encryptedKey is empty", ErrMalformed)
	}
	iv, err := decodeField("iv", e.IV)
	if err != nil {
		return err
	}
	if len(iv) != IVSize {
		return fmt.Errorf("%w: iv is %d bytes, want %d", ErrMalformed, len(iv), IVSize)
	}
	data, err := decodeField("encryptedData", e.EncryptedData)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: encryptedData is %d bytes, not a positive multiple of %d", ErrMalformed, len(data), aes.BlockSize)
	}
	return nil
}

// IsZero reports whether e is the empty envelope.
func (e Envelope) IsZero() bool {
	return e == Envelope{}
}

func decodeField(name, value string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64: %v", ErrMalformed, name, err)
	}
	return raw, nil
}
