// SPDX-License-Identifier: MIT

package gflights

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/metrics"
	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	RatePerSecond float64 // outbound request rate; <=0 disables limiting
	Retries       int     // extra attempts on transient failures; <=0 disables
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string

	BreakerThreshold int
	BreakerReset     time.Duration
}

// Client fetches search result pages. It is safe for concurrent use.
type Client struct {
	base         string
	userAgent    string
	http         *http.Client
	limiter      *rate.Limiter
	breaker      *CircuitBreaker
	retries      int
	retryBackoff time.Duration

	// snapshot hook, called with the fetched page body on success
	onPage func(q Query, url string, body []byte)
}

// New creates a client for the given base URL (normally
// https://www.google.com).
func New(base string, opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyServer != "" {
		proxyURL, err := url.Parse(opts.ProxyServer)
		if err != nil {
			return nil, fmt.Errorf("parse proxy server: %w", err)
		}
		if opts.ProxyUsername != "" {
			proxyURL.User = url.UserPassword(opts.ProxyUsername, opts.ProxyPassword)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	reset := opts.BreakerReset
	if reset <= 0 {
		reset = time.Minute
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		base:      strings.TrimRight(base, "/"),
		userAgent: opts.UserAgent,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				// A hop onto the consent host means we are being asked to
				// accept cookies instead of being served results.
				if strings.Contains(req.URL.Host, "consent.") {
					return errConsentRedirect
				}
				return nil
			},
		},
		limiter:      limiter,
		breaker:      NewCircuitBreaker(threshold, reset),
		retries:      retries,
		retryBackoff: 500 * time.Millisecond,
	}
	return c, nil
}

var errConsentRedirect = errors.New("redirected to consent page")

// OnPage registers a hook invoked with the raw body of every successfully
// fetched result page. Used by the snapshot store.
func (c *Client) OnPage(fn func(q Query, url string, body []byte)) {
	c.onPage = fn
}

// Breaker exposes the circuit breaker state to health checks.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// FetchResults builds the search URL for q, fetches the page and parses it
// into raw offers. Transient failures are retried with backoff before they
// count against the circuit breaker.
func (c *Client) FetchResults(ctx context.Context, q Query) ([]RawOffer, error) {
	u, err := SearchURL(c.base, q)
	if err != nil {
		return nil, err
	}

	var offers []RawOffer
	var noResults error
	err = c.breaker.Execute(func() error {
		var ferr error
		offers, ferr = c.fetchWithRetry(ctx, q, u)
		if errors.Is(ferr, ErrNoResults) {
			// The upstream answered; there just are no flights. That must
			// not open the circuit.
			noResults = ferr
			return nil
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if noResults != nil {
		return nil, noResults
	}
	return offers, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, q Query, u string) ([]RawOffer, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.retryBackoff << (attempt - 1)
			logger := log.WithComponentFromContext(ctx, "gflights")
			logger.Debug().
				Str("event", "gflights.retry").
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying result page fetch")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		offers, err := c.fetch(ctx, q, u)
		if err == nil {
			return offers, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// isTransient reports whether a fetch error is worth retrying. Being
// blocked is not: repeating the request only extends the block window.
func isTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamError)
}

func (c *Client) fetch(ctx context.Context, q Query, u string) ([]RawOffer, error) {
	logger := log.WithComponentFromContext(ctx, "gflights")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	start := time.Now()
	res, err := c.http.Do(req)
	metrics.ObserveFetchDuration(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, errConsentRedirect) {
			metrics.IncUpstreamRequest("blocked")
			return nil, &FetchError{Sentinel: ErrBlocked, URL: u, Err: err}
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			metrics.IncUpstreamRequest("network_error")
			return nil, &FetchError{Sentinel: ErrTimeout, URL: u, Err: err}
		}
		metrics.IncUpstreamRequest("network_error")
		return nil, &FetchError{Sentinel: ErrUpstreamUnavailable, URL: u, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		metrics.IncUpstreamRequest("blocked")
		return nil, &FetchError{Sentinel: ErrBlocked, URL: u, Status: res.StatusCode}
	case res.StatusCode >= 400:
		metrics.IncUpstreamRequest("http_error")
		return nil, &FetchError{Sentinel: ErrUpstreamError, URL: u, Status: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes))
	if err != nil {
		metrics.IncUpstreamRequest("network_error")
		return nil, &FetchError{Sentinel: ErrUpstreamUnavailable, URL: u, Err: err}
	}

	if isInterstitial(body) {
		metrics.IncUpstreamRequest("blocked")
		return nil, &FetchError{Sentinel: ErrBlocked, URL: u, Status: res.StatusCode}
	}

	offers, err := ParseResults(strings.NewReader(string(body)))
	if err != nil {
		if errors.Is(err, ErrNoResults) {
			metrics.IncUpstreamRequest("success")
			return nil, fmt.Errorf("%s: %w", u, err)
		}
		metrics.IncUpstreamRequest("http_error")
		return nil, err
	}

	metrics.IncUpstreamRequest("success")
	if c.onPage != nil {
		c.onPage(q, u, body)
	}

	logger.Debug().
		Str("event", "gflights.fetched").
		Str("url", u).
		Int("offers", len(offers)).
		Msg("result page fetched")
	return offers, nil
}

// maxPageBytes bounds result page reads. Result pages are around 1-2 MB;
// anything past 8 MB is not a flight list.
const maxPageBytes = 8 << 20

func (c *Client) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// isInterstitial detects consent and captcha pages served with HTTP 200.
func isInterstitial(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "consent.google.com") ||
		strings.Contains(s, "g-recaptcha") ||
		strings.Contains(s, "Before you continue")
}
