package envelope

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey *rsa.PrivateKey

func TestMain(m *testing.M) {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	m.Run()
}

func TestSealOpenRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"rrn suffix", "1234563"},
		{"full rrn", "8812251234563"},
		{"block aligned", "0123456789abcdef"},
		{"account", "110-234-567890"},
		{"hangul", "홍길동"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal(tt.plaintext, &testKey.PublicKey)
			require.NoError(t, err)
			require.NoError(t, env.Validate())

			got, err := Open(env, testKey)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestSealWireShape(t *testing.T) {
	env, err := Seal("1234563", &testKey.PublicKey)
	require.NoError(t, err)

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	require.NoError(t, err)
	assert.Len(t, iv, IVSize)

	sealedKey, err := base64.StdEncoding.DecodeString(env.EncryptedKey)
	require.NoError(t, err)
	assert.Len(t, sealedKey, testKey.Size())

	data, err := base64.StdEncoding.DecodeString(env.EncryptedData)
	require.NoError(t, err)
	assert.Len(t, data, 16)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t, []string{"encryptedKey", "encryptedData", "iv"}, keys(fields))
}

func TestSealIsFreshPerCall(t *testing.T) {
	a, err := Seal("1234563", &testKey.PublicKey)
	require.NoError(t, err)
	b, err := Seal("1234563", &testKey.PublicKey)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.EncryptedData, b.EncryptedData)
	assert.NotEqual(t, a.EncryptedKey, b.EncryptedKey)
}

func TestSealWithoutKey(t *testing.T) {
	_, err := Seal("1234563", nil)
	require.ErrorIs(t, err, ErrKeyUnavailable)

	var envErr *Error
	require.ErrorAs(t, err, &envErr)
	assert.False(t, envErr.HadPublicKey)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestSealCipherFailureCarriesFlagsNotPlaintext(t *testing.T) {
	_, err := seal(failingReader{}, "8812251234563", &testKey.PublicKey)
	require.ErrorIs(t, err, ErrEncryption)

	var envErr *Error
	require.ErrorAs(t, err, &envErr)
	assert.True(t, envErr.HadPublicKey)
	assert.Equal(t, 2048, envErr.KeyBits)
	assert.NotContains(t, err.Error(), "8812251234563")
}

func TestParse(t *testing.T) {
	good, err := Seal("1234563", &testKey.PublicKey)
	require.NoError(t, err)
	raw, err := json.Marshal(good)
	require.NoError(t, err)

	t.Run("accepts sealed envelope", func(t *testing.T) {
		env, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, good, env)
	})

	t.Run("rejects short iv", func(t *testing.T) {
		bad := good
		bad.IV = base64.StdEncoding.EncodeToString(make([]byte, 15))
		raw, _ := json.Marshal(bad)
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("rejects non base64 data", func(t *testing.T) {
		bad := good
		bad.EncryptedData = "not*base64"
		raw, _ := json.Marshal(bad)
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("rejects unaligned data", func(t *testing.T) {
		bad := good
		bad.EncryptedData = base64.StdEncoding.EncodeToString(make([]byte, 17))
		raw, _ := json.Marshal(bad)
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("rejects missing key", func(t *testing.T) {
		bad := good
		bad.EncryptedKey = ""
		raw, _ := json.Marshal(bad)
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := Parse([]byte(`{"encryptedKey":"a","encryptedData":"b","iv":"c","alg":"none"}`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

type staticKeys struct {
	key *rsa.PublicKey
	err error
}

func (s staticKeys) Get(context.Context) (*rsa.PublicKey, error) { return s.key, s.err }

func TestSealer(t *testing.T) {
	t.Run("seals with the source key", func(t *testing.T) {
		s := NewSealer(staticKeys{key: &testKey.PublicKey})
		env, err := s.Seal(context.Background(), "1234563")
		require.NoError(t, err)
		got, err := Open(env, testKey)
		require.NoError(t, err)
		assert.Equal(t, "1234563", got)
	})

	t.Run("fails fast when the key cannot be loaded", func(t *testing.T) {
		s := NewSealer(staticKeys{err: errors.New("fetch failed")})
		_, err := s.Seal(context.Background(), "1234563")
		assert.ErrorIs(t, err, ErrKeyUnavailable)
	})
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
