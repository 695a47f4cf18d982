// Package pubkey loads and caches the claim backend's RSA public key.
package pubkey

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"claimgate/internal/envelope"
)

const defaultFetchTimeout = 10 * time.Second

// Fetcher retrieves the PEM-encoded public key from the key endpoint.
type Fetcher interface {
	FetchPublicKey(ctx context.Context) (string, error)
}

// Provider fetches the key once and serves it from memory afterwards. A failed
// fetch leaves the key unset; the next Get tries again.
type Provider struct {
	fetcher      Fetcher
	logger       *slog.Logger
	fetchTimeout time.Duration

	mu    sync.RWMutex
	key   *rsa.PublicKey
	group singleflight.Group
}

type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// New constructs a Provider.
func New(fetcher Fetcher, opts ...Option) *Provider {
	p := &Provider{
		fetcher:      fetcher,
		logger:       slog.Default(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the cached key or fetches it. Concurrent callers during the
// first fetch share one request. The shared fetch is bounded by the provider's
// own timeout rather than by any single caller's context.
func (p *Provider) Get(ctx context.Context) (*rsa.PublicKey, error) {
	if key := p.cached(); key != nil {
		return key, nil
	}

	ch := p.group.DoChan("pubkey", func() (any, error) {
		if key := p.cached(); key != nil {
			return key, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()

		text, err := p.fetcher.FetchPublicKey(fetchCtx)
		if err != nil {
			return nil, err
		}
		key, err := ParsePEM(text)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.key = key
		p.mu.Unlock()
		return key, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", envelope.ErrKeyUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			p.logger.WarnContext(ctx, "public key fetch failed", "error", res.Err)
			return nil, fmt.Errorf("%w: %v", envelope.ErrKeyUnavailable, res.Err)
		}
		return res.Val.(*rsa.PublicKey), nil
	}
}

// Current returns the loaded key without fetching.
func (p *Provider) Current() (*rsa.PublicKey, error) {
	if key := p.cached(); key != nil {
		return key, nil
	}
	return nil, envelope.ErrKeyUnavailable
}

// Warm loads the key ahead of the first seal. Failure is logged; Get retries later.
func (p *Provider) Warm(ctx context.Context) {
	if _, err := p.Get(ctx); err != nil {
		p.logger.WarnContext(ctx, "public key warm-up failed; will retry on first seal", "error", err)
		return
	}
	p.logger.InfoContext(ctx, "public key loaded")
}

func (p *Provider) cached() *rsa.PublicKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key
}

// ParsePEM accepts a PKIX or PKCS#1 RSA public key, PEM-armoured or as bare
// base64 DER.
func ParsePEM(text string) (*rsa.PublicKey, error) {
	var der []byte
	if block, _ := pem.Decode([]byte(text)); block != nil {
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
		if err != nil {
			return nil, fmt.Errorf("public key is neither PEM nor base64 DER")
		}
		der = raw
	}

	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is %T, want RSA", pub)
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return rsaKey, nil
}
