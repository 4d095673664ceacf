package render

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains.
const maxRedirects = 10

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	// ProxyURL routes requests through an HTTP(S) or SOCKS5 proxy.
	ProxyURL string

	// Timeout bounds a whole request. Zero means no client-level timeout;
	// callers normally bound requests through their context instead.
	Timeout time.Duration

	// Cookie is a raw Cookie header value sent with every request.
	Cookie string

	// Headers are sent with every request and override defaults.
	Headers map[string]string

	// UserAgent replaces Go's default User-Agent when set.
	UserAgent string
}

// NewHTTPClient creates an HTTP client with a cookie jar, a bounded
// redirect chain and the configured proxy, headers and cookie.
// Response decompression is left to the caller.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}

	if opts.ProxyURL != "" {
		if err := configureProxy(transport, opts.ProxyURL); err != nil {
			return nil, err
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = transport
	if opts.Cookie != "" || len(opts.Headers) > 0 || opts.UserAgent != "" {
		rt = &headerInjectingTransport{
			base:      transport,
			cookie:    opts.Cookie,
			headers:   opts.Headers,
			userAgent: opts.UserAgent,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}, nil
}

// configureProxy routes transport through rawURL. SOCKS5 proxies are
// dialed directly; HTTP proxies use CONNECT.
func configureProxy(transport *http.Transport, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy url %q: %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
type headerInjectingTransport struct {
	base      http.RoundTripper
	cookie    string
	headers   map[string]string
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
