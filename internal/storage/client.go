package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrObjectNotFound indicates the requested key does not exist in the bucket.
var ErrObjectNotFound = errors.New("storage: object not found")

// Config carries the S3-compatible endpoint settings. The client is built
// once at startup from validated configuration; there is no lazy global.
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	Timeout       time.Duration
}

// Validate fails fast on configuration that would otherwise produce
// malformed requests or URLs at serve time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("storage: endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("storage: bucket name is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("storage: access key and secret key are required")
	}
	return nil
}

// Object is a fetched storage object. Callers own Body and must close it.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
	LastModified  string
	CacheControl  string
}

// Client performs signed requests against one bucket of an S3-compatible
// object store.
type Client struct {
	endpoint      *url.URL
	region        string
	bucket        string
	signer        *signer
	publicBaseURL string
	http          *http.Client
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"))
	if err != nil {
		return nil, fmt.Errorf("storage: parse endpoint: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("storage: endpoint %q must include scheme and host", cfg.Endpoint)
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "auto"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		endpoint:      endpoint,
		region:        region,
		bucket:        strings.TrimSpace(cfg.Bucket),
		signer:        newSigner(cfg.AccessKey, cfg.SecretKey, region),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		http:          &http.Client{Timeout: timeout},
	}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// GetObject fetches a key from the bucket. The caller must close Object.Body.
func (c *Client) GetObject(ctx context.Context, key string) (*Object, error) {
	req, err := c.newRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	c.signer.sign(req, emptyPayloadHash, time.Now().UTC())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: get object %q: %w", key, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrObjectNotFound
	case resp.StatusCode != http.StatusOK:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("storage: get object %q: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return &Object{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		ETag:          resp.Header.Get("ETag"),
		LastModified:  resp.Header.Get("Last-Modified"),
		CacheControl:  resp.Header.Get("Cache-Control"),
	}, nil
}

// PutObject uploads a payload under the given key.
func (c *Client) PutObject(ctx context.Context, key string, payload []byte, contentType string) error {
	req, err := c.newRequest(ctx, http.MethodPut, key, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(payload))

	c.signer.sign(req, payloadHash(payload), time.Now().UTC())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("storage: put object %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("storage: put object %q: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	target := *c.endpoint
	target.Path = "/" + c.bucket + "/" + strings.TrimLeft(key, "/")

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("storage: build request: %w", err)
	}
	return req, nil
}
