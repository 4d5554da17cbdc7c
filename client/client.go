package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 1

	userAgentValue = "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Mobile Safari/537.36"
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 3 * time.Second

	successMinCode   = http.StatusOK                  // 200
	successMaxCode   = http.StatusMultipleChoices     // 300
	retryableMinCode = http.StatusInternalServerError // 500

	// maxBodySize bounds decoded page bodies.
	maxBodySize = 32 << 20
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ForceAttemptHTTP2:     true,
		// Bodies are decoded by DecodeBody so that br and zstd are covered.
		DisableCompression: true,
		ReadBufferSize:     16 * 1024,
		WriteBufferSize:    16 * 1024,
		DialContext:        newDialer().DialContext,
	}
}

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	ProxyURL  string
	NoProxy   []string
	// Rate limits outbound requests per second; zero means unlimited.
	Rate  float64
	Burst int
}

// Client wraps http.Client with throttling, retry/backoff and body decoding.
type Client struct {
	HTTPClient  *http.Client
	Retries     int
	UserAgent   string
	// MaxBodySize bounds decoded bodies; larger ones fail with errs.ErrBodyTooLarge.
	MaxBodySize int64
	limiter     *rate.Limiter
}

// New creates a Client with a tuned Transport, default timeout and a single attempt.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: newTransport(),
		},
		Retries:     defaultRetries,
		UserAgent:   userAgentValue,
		MaxBodySize: maxBodySize,
	}
}

// NewWith creates a client from cfg. Zero values use defaults.
func NewWith(cfg Config) (*Client, error) {
	c := New()
	if cfg.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.Timeout
	}
	if cfg.Retries > 0 {
		c.Retries = cfg.Retries
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.ProxyURL != "" {
		tr := c.HTTPClient.Transport.(*http.Transport)
		if err := configureProxy(tr, cfg.ProxyURL, cfg.NoProxy); err != nil {
			return nil, errs.E(errs.KindConfig, "configure proxy", err)
		}
	}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return c, nil
}

// Do sends req, retrying network failures and 5xx answers up to Retries
// attempts in total. It returns an upstream error for any final non-2xx status.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := logger.WithComponent(logger.ComponentClient)
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = userAgentValue
		}
		req.Header.Set("User-Agent", ua)
	}

	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, errs.E(errs.KindUpstream, "rate limit", err)
			}
		}

		resp, err := c.HTTPClient.Do(req)
		switch {
		case err != nil:
			lastErr = errs.E(errs.KindUpstream, "GET "+req.URL.Redacted(), err)
		case resp.StatusCode >= successMinCode && resp.StatusCode < successMaxCode:
			return resp, nil
		default:
			_ = resp.Body.Close()
			lastErr = &errs.Error{
				Kind:    errs.KindUpstream,
				Op:      "GET " + req.URL.Redacted(),
				Message: fmt.Sprintf("status %d", resp.StatusCode),
				Err:     errs.ErrUpstreamStatus,
			}
			if resp.StatusCode < retryableMinCode {
				return nil, lastErr
			}
		}

		if attempt == retries {
			break
		}
		log.Debug("retrying request", map[string]interface{}{"url": req.URL.Redacted(), "attempt": attempt, "error": lastErr.Error()})
		select {
		case <-ctx.Done():
			return nil, errs.E(errs.KindUpstream, "GET "+req.URL.Redacted(), ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil, lastErr
}

// Fetch performs req through Do and returns the decoded body.
func (c *Client) Fetch(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	reader, err := DecodeBody(resp)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "decode body", err)
	}
	defer func() { _ = reader.Close() }()

	limit := c.MaxBodySize
	if limit <= 0 {
		limit = maxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "read body", err)
	}
	if int64(len(body)) > limit {
		return nil, &errs.Error{
			Kind:    errs.KindUpstream,
			Op:      "read body",
			Message: fmt.Sprintf("exceeds %d bytes", limit),
			Err:     errs.ErrBodyTooLarge,
		}
	}
	return body, nil
}
