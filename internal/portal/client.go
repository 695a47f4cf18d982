// Package portal is the HTTP client for the insurer's claim backend: the
// public key, upload, product, contract and claim endpoints.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"claimgate/pkg/requestcontext"
)

const (
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Endpoints are paths relative to the base URL.
type Endpoints struct {
	PublicKey string
	Upload    string
	Product   string
	Contracts string
	Claim     string
}

var DefaultEndpoints = Endpoints{
	PublicKey: "/auth/pubkey",
	Upload:    "/upload",
	Product:   "/product",
	Contracts: "/contracts",
	Claim:     "/accident",
}

// Client talks to the backend. It never retries: every failure goes back to
// the caller, which decides whether the user should try again.
type Client struct {
	baseURL       string
	endpoints     Endpoints
	metadataField string
	httpClient    *http.Client
}

type Option func(*Client)

func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// WithMetadataField names the multipart field carrying upload metadata.
func WithMetadataField(name string) Option {
	return func(c *Client) {
		c.metadataField = name
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("portal base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("portal base URL: %w", err)
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		endpoints:     DefaultEndpoints,
		metadataField: "data",
		httpClient:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPublicKey returns the PEM text of the backend's RSA key.
func (c *Client) FetchPublicKey(ctx context.Context) (string, error) {
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.doJSON(ctx, "pubkey", http.MethodGet, c.endpoints.PublicKey, nil, &out); err != nil {
		return "", err
	}
	if out.PublicKey == "" {
		return "", fmt.Errorf("portal pubkey: empty publicKey")
	}
	return out.PublicKey, nil
}

// UploadRequest is one file plus the batch metadata.
type UploadRequest struct {
	Metadata    []byte
	FileName    string
	ContentType string
	Content     io.Reader
}

// Upload posts a multipart body and returns the server-assigned filename. The
// backend answers with either "Filename" or "filename".
func (c *Client) Upload(ctx context.Context, up UploadRequest) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField(c.metadataField, string(up.Metadata)); err != nil {
		return "", fmt.Errorf("portal upload: write metadata: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.FileName))
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("portal upload: create part: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return "", fmt.Errorf("portal upload: read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("portal upload: close body: %w", err)
	}

	raw, err := c.do(ctx, "upload", http.MethodPost, c.endpoints.Upload, mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	var out struct {
		Upper string `json:"Filename"`
		Lower string `json:"filename"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("portal upload: decode response: %w", err)
	}
	if out.Upper != "" {
		return out.Upper, nil
	}
	return out.Lower, nil
}

// FetchProduct returns the raw product document for code.
func (c *Client) FetchProduct(ctx context.Context, code string) ([]byte, error) {
	return c.do(ctx, "product", http.MethodGet, c.endpoints.Product+"/"+url.PathEscape(code), "", nil)
}

// ListContracts returns the contracts eligible for receiptType.
func (c *Client) ListContracts(ctx context.Context, receiptType string) ([]map[string]any, error) {
	var out struct {
		Contracts []map[string]any `json:"contracts"`
	}
	path := c.endpoints.Contracts + "?" + url.Values{"receiptType": {receiptType}}.Encode()
	if err := c.doJSON(ctx, "contracts", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Contracts == nil {
		out.Contracts = []map[string]any{}
	}
	return out.Contracts, nil
}

// ClaimResult is the backend's verdict on a submitted claim.
type ClaimResult struct {
	ErrCd  string `json:"errCd"`
	ErrMsg string `json:"errMsg"`
}

// SubmitClaim posts the assembled claim payload.
func (c *Client) SubmitClaim(ctx context.Context, payload map[string]any) (ClaimResult, error) {
	var out ClaimResult
	err := c.doJSON(ctx, "claim", http.MethodPost, c.endpoints.Claim, payload, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("portal %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	raw, err := c.do(ctx, op, method, path, contentType, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("portal %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) ([]byte, error) {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("portal %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, URL: target, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	return raw, nil
}

// errorMessage pulls a short message out of an error body, if there is one.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		ErrMsg  string `json:"errMsg"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, m := range []string{body.Message, body.Error, body.ErrMsg} {
			if m != "" {
				return m
			}
		}
	}
	return ""
}
