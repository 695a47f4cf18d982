package envelope

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Seal encrypts plaintext for the holder of key's private half.
func Seal(plaintext string, key *rsa.PublicKey) (Envelope, error) {
	return seal(rand.Reader, plaintext, key)
}

func seal(random io.Reader, plaintext string, key *rsa.PublicKey) (Envelope, error) {
	if key == nil {
		return Envelope{}, &Error{Op: "seal", Err: ErrKeyUnavailable}
	}
	fail := func(err error) (Envelope, error) {
		return Envelope{}, &Error{Op: "seal", HadPublicKey: true, KeyBits: key.N.BitLen(), Err: fmt.Errorf("%w: %v", ErrEncryption, err)}
	}

	aesKey := make([]byte, KeySize)
	if _, err := io.ReadFull(random, aesKey); err != nil {
		return fail(err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(random, iv); err != nil {
		return fail(err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return fail(err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	sealedKey, err := rsa.EncryptOAEP(sha256.New(), random, key, aesKey, nil)
	if err != nil {
		return fail(err)
	}

	return Envelope{
		EncryptedKey:  base64.StdEncoding.EncodeToString(sealedKey),
		EncryptedData: base64.StdEncoding.EncodeToString(ciphertext),
		IV:            base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Open reverses Seal with the matching private key.
func Open(env Envelope, priv *rsa.PrivateKey) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}
	sealedKey, _ := base64.StdEncoding.DecodeString(env.EncryptedKey)
	iv, _ := base64.StdEncoding.DecodeString(env.IV)
	ciphertext, _ := base64.StdEncoding.DecodeString(env.EncryptedData)

	aesKey, err := rsa.DecryptOAEP(sha256.New(), nil, priv, sealedKey, nil)
	if err != nil {
		return "", fmt.Errorf("unseal key: %w", err)
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("unseal data: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// KeySource yields the server public key.
type KeySource interface {
	Get(ctx context.Context) (*rsa.PublicKey, error)
}

// Sealer seals with whatever key its source currently provides.
type Sealer struct {
	keys KeySource
}

// NewSealer binds a key source.
func NewSealer(keys KeySource) *Sealer {
	return &Sealer{keys: keys}
}

// Seal resolves the key and seals plaintext. A missing key surfaces as
// ErrKeyUnavailable before any cipher work happens.
func (s *Sealer) Seal(ctx context.Context, plaintext string) (Envelope, error) {
	key, err := s.keys.Get(ctx)
	if err != nil {
		return Envelope{}, &Error{Op: "seal", Err: fmt.Errorf("%w: %v", ErrKeyUnavailable, err)}
	}
	return Seal(plaintext, key)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length %d", ErrMalformed, len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
		}
	}
	return data[:len(data)-padLen], nil
}
