// Package fetch performs the pipeline's outbound GETs against untrusted hosts.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"recipebox/internal/recipe"
)

const (
	// DefaultTimeout bounds a single GET when the caller's context does not.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxBodyBytes caps page and image bodies.
	DefaultMaxBodyBytes int64 = 10 << 20

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var (
	cgnat    = mustCIDR("100.64.0.0/10")
	v6unique = mustCIDR("fc00::/7")
	v6link   = mustCIDR("fe80::/10")
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IPGuard decides whether the fetcher may connect to ip.
type IPGuard func(ip net.IP) error

// PublicOnly rejects loopback, private, link-local and other reserved addresses.
func PublicOnly(ip net.IP) error {
	if IsPrivateIP(ip) {
		return fmt.Errorf("connection to private IP %s is not allowed", ip)
	}
	return nil
}

// IsPrivateIP reports whether ip is in a private or reserved range,
// including IPv4-mapped IPv6 forms.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return true
	}
	return cgnat.Contains(ip) || v6unique.Contains(ip) || v6link.Contains(ip)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithIPGuard replaces PublicOnly as the check applied to every dialed address
// and redirect target.
func WithIPGuard(g IPGuard) Option {
	return func(f *Fetcher) { f.guard = g }
}

// Fetcher retrieves recipe pages and images. Safe for concurrent use.
type Fetcher struct {
	client       *http.Client
	maxBodyBytes int64
	guard        IPGuard
}

// NewFetcher creates a new Fetcher. Zero values select the defaults.
func NewFetcher(timeout time.Duration, maxBodyBytes int64, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	f := &Fetcher{maxBodyBytes: maxBodyBytes, guard: PublicOnly}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	// Every resolved address must pass the guard, not just the URL host.
	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}
		for _, ipAddr := range ips {
			if err := f.guard(ipAddr.IP); err != nil {
				return nil, err
			}
		}
		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
		}
		return nil, fmt.Errorf("failed to connect to any resolved IP for %s", host)
	}

	f.client = &http.Client{
		Transport: &http.Transport{
			DialContext:           safeDialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			if err := f.validateURL(req.URL); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
	return f
}

// validateURL rejects URLs that cannot be fetched or name a local host.
func (f *Fetcher) validateURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("local host %q is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return f.guard(ip)
	}
	return nil
}

// FetchPage returns the HTML of a recipe page decoded to UTF-8.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (string, error) {
	body, contentType, err := f.get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8", "document")
	if err != nil {
		return "", err
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// Unknown label; hand back the raw bytes.
		return string(body), nil
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", recipe.SourceUnreachable("decode page", err)
	}
	return string(decoded), nil
}

// FetchImage returns the bytes of a remote image. Responses that do not
// declare an image/* content type are rejected.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	body, contentType, err := f.get(ctx, rawURL, "image/avif,image/webp,image/apng,image/*,*/*;q=0.8", "image")
	if err != nil {
		return nil, err
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, recipe.SourceUnreachable(fmt.Sprintf("fetch image: unexpected content type %q", contentType), nil)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept, dest string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", recipe.SourceUnreachable(fmt.Sprintf("invalid URL %q", rawURL), err)
	}
	if err := f.validateURL(u); err != nil {
		return nil, "", recipe.SourceUnreachable("fetch "+u.Host, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", recipe.SourceUnreachable("create request", err)
	}
	setBrowserHeaders(req.Header, accept, dest)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", recipe.SourceUnreachable("fetch "+u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", recipe.SourceUnreachable(fmt.Sprintf("fetch %s: HTTP %d", u.Host, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, "", recipe.SourceUnreachable("read body", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, "", recipe.SourceUnreachable(fmt.Sprintf("content too large (exceeds %d bytes)", f.maxBodyBytes), nil)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// setBrowserHeaders mimics a desktop browser; many recipe sites refuse bare clients.
// Accept-Encoding is left to the transport so responses are decompressed for us.
func setBrowserHeaders(h http.Header, accept, dest string) {
	h.Set("User-Agent", userAgent)
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", dest)
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
}
