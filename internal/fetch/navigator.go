package fetch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Navigator performs one page navigation and returns the rendered content.
// The production implementation is HTTP-based; tests substitute stubs.
type Navigator interface {
	Navigate(ctx context.Context, pageURL string, fp Fingerprint) (string, error)
}

// HTTPNavigator fetches pages over plain HTTP with browser-like headers
// derived from the client fingerprint.
type HTTPNavigator struct {
	client *resty.Client
}

// NewHTTPNavigator creates a navigator with the given per-request timeout.
func NewHTTPNavigator(timeout time.Duration) *HTTPNavigator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetRetryCount(0) // retries are the RetryPolicy's job, not the transport's
	return &HTTPNavigator{client: client}
}

// Navigate fetches pageURL presenting the fingerprint's identity headers.
func (n *HTTPNavigator) Navigate(ctx context.Context, pageURL string, fp Fingerprint) (string, error) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", fp.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8").
		SetHeader("Accept-Language", fmt.Sprintf("%s,en;q=0.9", fp.Locale)).
		SetHeader("Accept-Encoding", "gzip, deflate, br").
		SetHeader("Sec-CH-Viewport-Width", strconv.Itoa(fp.Viewport.Width)).
		SetHeader("Sec-CH-UA-Mobile", "?0").
		Get(pageURL)
	if err != nil {
		return "", &PageError{Kind: classifyTransportError(err), URL: pageURL, Err: err}
	}

	status := resp.StatusCode()
	if status >= 400 {
		return "", &PageError{Kind: classifyStatus(status), Status: status, URL: pageURL}
	}

	return string(resp.Body()), nil
}
