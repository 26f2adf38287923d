package twitch

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/nicklaw5/helix"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

// RetryConfig controls how rate-limited and failed transport calls are retried.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig waits 1s, 2s, 4s before giving up on a 429.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: time.Second,
	MaxWait:     4 * time.Second,
	Multiplier:  2.0,
}

func (rc RetryConfig) wait(retry int) time.Duration {
	wait := time.Duration(float64(rc.InitialWait) * math.Pow(rc.Multiplier, float64(retry)))
	if rc.MaxWait > 0 && wait > rc.MaxWait {
		wait = rc.MaxWait
	}
	return wait
}

// Client is the only path to the Helix API. Requests go through helix; Client
// attaches the current app token, retries 429 responses with backoff, and
// recovers once from a 401 by refreshing the token.
type Client struct {
	tokens     *TokenManager
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithRetryConfig(rc RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = rc
	}
}

func NewClient(tokens *TokenManager, opts ...ClientOption) *Client {
	c := &Client{
		tokens:     tokens,
		baseURL:    DefaultAPIURL,
		httpClient: NewHTTPClient(DefaultRequestTimeout),
		retry:      DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// contextDoer binds helix requests, which are built without a context, to ctx.
type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

// api returns a helix client that sends tok and is cancelled with ctx.
// helix reads its token without locking, so every call gets its own client.
func (c *Client) api(ctx context.Context, tok Token) (*helix.Client, error) {
	return helix.NewClient(&helix.Options{
		ClientID:       c.tokens.ClientID(),
		AppAccessToken: tok.Value,
		APIBaseURL:     c.baseURL,
		HTTPClient:     contextDoer{ctx: ctx, client: c.httpClient},
	})
}

// call runs fn until it gets a 2xx response or the retry policy gives up.
// Non-2xx responses other than 401 and 429 fail immediately.
func (c *Client) call(ctx context.Context, endpoint string, fn func(api *helix.Client) (*helix.ResponseCommon, error)) error {
	authRetried := false
	retries := 0

	for {
		tok, err := c.tokens.Token(ctx, false)
		if err != nil {
			return err
		}
		api, err := c.api(ctx, tok)
		if err != nil {
			return errs.Wrap(err, errs.ErrUpstream, "create helix client")
		}

		resp, err := fn(api)
		if err != nil {
			if ctx.Err() != nil {
				return errs.Wrap(ctx.Err(), errs.ErrUpstream, "request cancelled").WithContext("endpoint", endpoint)
			}
			if retries >= c.retry.MaxRetries {
				return errs.Wrap(err, errs.ErrUpstream, "request failed").WithContext("endpoint", endpoint)
			}
			wait := c.retry.wait(retries)
			retries++
			log.Warn("Request to %s failed, retrying in %s (%d/%d): %v", endpoint, wait, retries, c.retry.MaxRetries, err)
			if err := sleep(ctx, wait); err != nil {
				return errs.Wrap(err, errs.ErrUpstream, "request cancelled").WithContext("endpoint", endpoint)
			}
			continue
		}

		status := resp.StatusCode
		switch {
		case status >= 200 && status < 300:
			return nil

		case status == http.StatusUnauthorized && !authRetried:
			authRetried = true
			log.Warn("Request to %s was unauthorized, refreshing token", endpoint)
			if _, err := c.tokens.refreshIfStale(ctx, tok.Value); err != nil {
				return err
			}

		case status == http.StatusTooManyRequests:
			if retries >= c.retry.MaxRetries {
				return errs.New(errs.ErrUpstream, "rate limit retries exhausted").WithStatus(status).WithContext("endpoint", endpoint)
			}
			wait := c.retry.wait(retries)
			retries++
			log.Warn("Rate limited on %s, waiting %s (%d/%d)", endpoint, wait, retries, c.retry.MaxRetries)
			if err := sleep(ctx, wait); err != nil {
				return errs.Wrap(err, errs.ErrUpstream, "request cancelled").WithStatus(status).WithContext("endpoint", endpoint)
			}

		default:
			e := errs.New(errs.ErrUpstream, "unexpected response").WithStatus(status).WithContext("endpoint", endpoint)
			if detail := strings.TrimSpace(resp.ErrorMessage); detail != "" {
				e.WithContext("detail", detail)
			}
			return e
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
