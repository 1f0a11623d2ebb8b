// Package fetch downloads remote artwork over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/edumarques81/stellar-coverart/internal/version"
)

const (
	// DefaultRateLimit is the number of requests per second.
	DefaultRateLimit = 4

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 15 * time.Second

	// MaxImageSize is the maximum image size to download (10MB)
	MaxImageSize = 10 * 1024 * 1024
)

var (
	// ErrArtworkNotFound indicates the server has no image at the URL.
	ErrArtworkNotFound = errors.New("artwork not found")

	// ErrTemporaryFailure indicates a temporary failure (should retry)
	ErrTemporaryFailure = errors.New("temporary failure")

	// ErrRateLimited indicates the server rejected the request rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotImage indicates the payload is not a recognised image format.
	ErrNotImage = errors.New("response is not an image")

	// ErrTooLarge indicates the body exceeds MaxImageSize.
	ErrTooLarge = errors.New("image exceeds size limit")
)

// DefaultUserAgent identifies the fetcher to remote servers.
func DefaultUserAgent() string {
	return fmt.Sprintf("StellarCoverart/%s (https://github.com/edumarques81/stellar-coverart)", version.Version)
}

// Client fetches artwork bytes. It implements artwork.RemoteFetcher.
type Client struct {
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithUserAgent sets a custom User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit sets the rate limit in requests per second. Zero or less
// disables limiting.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		c.limiter = newLimiter(rps)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new remote artwork client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		userAgent: DefaultUserAgent(),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newLimiter(DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch downloads the image at url.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	log.Debug().Str("url", url).Msg("Fetching remote artwork")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		log.Debug().Str("url", url).Msg("Remote artwork not found")
		return nil, ErrArtworkNotFound
	case http.StatusTooManyRequests:
		log.Warn().Str("url", url).Msg("Remote artwork rate limit exceeded")
		return nil, ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("Remote artwork temporary error")
		return nil, ErrTemporaryFailure
	default:
		log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("Remote artwork unexpected status")
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// One extra byte tells a body at the limit from one over it.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrArtworkNotFound
	}

	mimeType := DetectMimeType(data)
	if mimeType == "application/octet-stream" {
		log.Debug().Str("url", url).Str("type", resp.Header.Get("Content-Type")).Msg("Remote payload is not an image")
		return nil, ErrNotImage
	}

	log.Debug().
		Str("url", url).
		Int("size", len(data)).
		Str("type", mimeType).
		Msg("Fetched remote artwork")

	return data, nil
}

// DetectMimeType detects the MIME type from image magic bytes.
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46:
		return "image/gif"
	case data[0] == 0x42 && data[1] == 0x4D:
		return "image/bmp"
	case data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46:
		// RIFF header - could be WebP
		if len(data) >= 12 && data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
			return "image/webp"
		}
	}

	return "application/octet-stream"
}

// newLimiter allows rps requests per second without bursting.
func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
