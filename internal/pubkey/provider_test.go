package pubkey

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"claimgate/internal/envelope"
)

type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	pem   string
	err   error
}

func (f *fakeFetcher) FetchPublicKey(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.pem, f.err
}

type ProviderSuite struct {
	suite.Suite
	priv    *rsa.PrivateKey
	pkixPEM string
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupSuite() {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.priv = priv
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	s.Require().NoError(err)
	s.pkixPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func (s *ProviderSuite) TestConcurrentCallersShareOneFetch() {
	fetcher := &fakeFetcher{gate: make(chan struct{}), pem: s.pkixPEM}
	p := New(fetcher)

	var wg sync.WaitGroup
	results := make([]*rsa.PublicKey, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, err := p.Get(context.Background())
			s.NoError(err)
			results[i] = key
		}(i)
	}

	// Let every goroutine reach the in-flight fetch before releasing it.
	s.Eventually(func() bool { return fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	s.Equal(int32(1), fetcher.calls.Load())
	for _, key := range results {
		s.True(s.priv.PublicKey.Equal(key))
	}

	_, err := p.Get(context.Background())
	s.Require().NoError(err)
	s.Equal(int32(1), fetcher.calls.Load(), "cached key must not refetch")
}

func (s *ProviderSuite) TestFailureLeavesKeyUnset() {
	fetcher := &fakeFetcher{err: errors.New("502 bad gateway")}
	p := New(fetcher)

	_, err := p.Get(context.Background())
	s.Require().ErrorIs(err, envelope.ErrKeyUnavailable)

	_, err = p.Current()
	s.Require().ErrorIs(err, envelope.ErrKeyUnavailable)

	fetcher.err = nil
	fetcher.pem = s.pkixPEM
	key, err := p.Get(context.Background())
	s.Require().NoError(err)
	s.True(s.priv.PublicKey.Equal(key))
	s.Equal(int32(2), fetcher.calls.Load())

	current, err := p.Current()
	s.Require().NoError(err)
	s.Same(key, current)
}

func (s *ProviderSuite) TestGarbageKeyIsUnavailable() {
	p := New(&fakeFetcher{pem: "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n"})
	_, err := p.Get(context.Background())
	s.ErrorIs(err, envelope.ErrKeyUnavailable)
}

func (s *ProviderSuite) TestCallerCancellation() {
	fetcher := &fakeFetcher{gate: make(chan struct{}), pem: s.pkixPEM}
	p := New(fetcher)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Get(ctx)
	s.ErrorIs(err, envelope.ErrKeyUnavailable)
	close(fetcher.gate)
}

func TestParsePEM(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey)})
	key, err := ParsePEM(string(pkcs1))
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(key))

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	key, err = ParsePEM(base64.StdEncoding.EncodeToString(der))
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(key))

	_, err = ParsePEM("not a key")
	assert.Error(t, err)
}
