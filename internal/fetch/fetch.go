// Package fetch implements the single policy-driven HTTP GET shared by every
// network client: retry with back-off, manual redirect following, Retry-After
// handling and response classification.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cdrip/internal/shared"
)

const (
	// DefaultTimeout applies to metadata queries.
	DefaultTimeout = 10 * time.Second
	// DefaultCoverArtTimeout applies to cover-art downloads.
	DefaultCoverArtTimeout = 15 * time.Second
	// DefaultRetryDelay is slept between retryable attempts.
	DefaultRetryDelay = 1200 * time.Millisecond
	// DefaultMaxAttempts bounds the retry loop.
	DefaultMaxAttempts = 3
	// DefaultMaxRedirects bounds manual redirect following.
	DefaultMaxRedirects = 2

	maxRetryAfter      = time.Hour
	diagnosticBodySize = 300
)

// Policy configures one retrying GET.
type Policy struct {
	Timeout           time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	MaxRedirects      int
	RespectRetryAfter bool
}

// DefaultPolicy returns the metadata-query policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:           DefaultTimeout,
		MaxAttempts:       DefaultMaxAttempts,
		RetryDelay:        DefaultRetryDelay,
		MaxRedirects:      DefaultMaxRedirects,
		RespectRetryAfter: true,
	}
}

// CoverArtPolicy returns the cover-art download policy.
func CoverArtPolicy() Policy {
	p := DefaultPolicy()
	p.Timeout = DefaultCoverArtTimeout
	return p
}

// Result is a successful GET.
type Result struct {
	Body        []byte
	ContentType string
}

// Client issues policy GETs with a fixed User-Agent.
type Client struct {
	UserAgent string
	Policy    Policy

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client
}

// NewClient creates a client with the given User-Agent and policy.
func NewClient(userAgent string, policy Policy) *Client {
	return &Client{UserAgent: userAgent, Policy: policy}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Timeout: c.Policy.Timeout,
		// Redirects are followed manually so they do not consume attempts.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func statusIsRetryable(status int) bool {
	if status == 0 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

// errIsRetryable reports whether a transport error is worth retrying:
// timeouts, resets and transient TLS handshake failures. Certificate
// verification failures are terminal.
func errIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	sec, err := strconv.Atoi(value)
	if err != nil || sec <= 0 {
		return 0
	}
	d := time.Duration(sec) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func (c *Client) retryDelay(resp *http.Response) time.Duration {
	if c.Policy.RespectRetryAfter && resp != nil {
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			return d
		}
	}
	if c.Policy.RetryDelay > 0 {
		return c.Policy.RetryDelay
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get performs a GET against url with the client policy. service names the
// remote side in diagnostics; accept is sent as the Accept header when
// non-empty.
func (c *Client) Get(ctx context.Context, service, url, accept string) (*Result, error) {
	httpClient := c.httpClient()
	maxAttempts := c.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	currentURL := url
	redirects := 0
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			return nil, shared.WrapError(shared.KindNetworkFatal,
				fmt.Sprintf("%s request for %s is invalid", service, currentURL), err)
		}
		req.Header.Set("User-Agent", c.UserAgent)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if errIsRetryable(err) && attempt+1 < maxAttempts {
				lastErr = err
				if serr := sleepCtx(ctx, c.retryDelay(nil)); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, shared.WrapError(shared.KindNetworkFatal,
				fmt.Sprintf("%s request failed", service), err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 300 && resp.StatusCode <= 399 {
			location := resp.Header.Get("Location")
			if location != "" && redirects < c.Policy.MaxRedirects {
				if ref, err := resp.Request.URL.Parse(location); err == nil {
					currentURL = ref.String()
				} else {
					currentURL = location
				}
				redirects++
				attempt-- // redirects do not consume attempts
				continue
			}
		}

		success := resp.StatusCode >= 200 && resp.StatusCode <= 299
		if success && readErr == nil && len(body) > 0 {
			return &Result{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
		}

		emptySuccessBody := success && (readErr != nil || len(body) == 0)
		retryable := statusIsRetryable(resp.StatusCode) || emptySuccessBody || errIsRetryable(readErr)
		if retryable && attempt+1 < maxAttempts {
			lastErr = fmt.Errorf("%s returned status %d", service, resp.StatusCode)
			if serr := sleepCtx(ctx, c.retryDelay(resp)); serr != nil {
				return nil, serr
			}
			continue
		}

		if emptySuccessBody {
			return nil, shared.Errorf(shared.KindNetworkTransient, "%s response body is empty", service)
		}

		msg := fmt.Sprintf("%s request failed with status %d", service, resp.StatusCode)
		if excerpt := shared.TruncateForDiagnostics(strings.TrimSpace(string(body)), diagnosticBodySize); excerpt != "" {
			msg += " (" + excerpt + ")"
		}
		kind := shared.KindNetworkFatal
		if retryable {
			kind = shared.KindNetworkTransient
		}
		return nil, shared.NewError(kind, msg)
	}

	return nil, shared.WrapError(shared.KindNetworkTransient,
		fmt.Sprintf("%s request failed after %d attempts", service, maxAttempts), lastErr)
}
