package crawler

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/nao1215/websaver/internal/model"
)

// Normalizer turns raw links into canonical URL keys and rejects links
// that must not be crawled. It holds no mutable state.
type Normalizer struct {
	scope *Scope

	// ignorePatterns are URL path globs that are never followed.
	ignorePatterns []string

	// followPatterns, if not empty, are the only URL path globs followed.
	followPatterns []string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithIgnore sets URL path patterns that are never followed.
// Patterns use glob syntax (e.g. "/admin/*", "*.pdf", "/logout*").
func WithIgnore(patterns []string) NormalizerOption {
	return func(n *Normalizer) {
		n.ignorePatterns = patterns
	}
}

// WithFollow restricts the crawl to URL paths matching at least one pattern.
func WithFollow(patterns []string) NormalizerOption {
	return func(n *Normalizer) {
		n.followPatterns = patterns
	}
}

// NewNormalizer creates a Normalizer enforcing scope.
func NewNormalizer(scope *Scope, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{scope: scope}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize resolves rawLink against base and returns its canonical key
// and the URL to fetch. The key identifies the page; the fetch URL keeps
// the path and query as written, trailing slash included. The error
// satisfies errors.Is(err, ErrScopeRejected) when the link must be
// dropped. The same inputs always yield the same result.
func (n *Normalizer) Normalize(rawLink string, base *url.URL) (string, *url.URL, error) {
	canon, target, err := resolve(rawLink, base)
	if err != nil {
		return "", nil, err
	}
	if n.scope != nil && !n.scope.Contains(canon) {
		return "", nil, fmt.Errorf("%w: %s", ErrOutOfScope, canon)
	}
	if !n.allowed(canon.Path) {
		return "", nil, fmt.Errorf("%w: %s", ErrFiltered, canon.Path)
	}
	return canon.String(), target, nil
}

// NormalizeSeed returns the canonical key of the seed and the URL to
// fetch. A missing scheme defaults to https. Scope and pattern rules do
// not apply to the seed.
func NormalizeSeed(raw string) (string, *url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, ErrInvalidSeed
	}
	raw, err := model.CompleteSeed(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	canon, target, err := resolve(raw, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return canon.String(), target, nil
}

// resolve parses a link, resolves it against base and returns two forms.
//
// The canonical form has a lower-case scheme and host, no default port,
// no user info, no fragment, no dot or empty segments, no trailing slash
// except on the root, and query parameters sorted by name. Encoded
// slashes stay inside their segment.
//
// The target form shares the canonical scheme and host but keeps the
// resolved path and query untouched. It drops only user info and the
// fragment.
func resolve(rawLink string, base *url.URL) (canon, target *url.URL, err error) {
	rawLink = strings.TrimSpace(rawLink)
	if rawLink == "" {
		return nil, nil, ErrInvalidLink
	}
	ref, err := url.Parse(rawLink)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: %q has no host", ErrInvalidLink, rawLink)
	}

	host, err := canonicalHost(scheme, u.Host)
	if err != nil {
		return nil, nil, err
	}
	decoded, escaped, err := canonicalPath(u.EscapedPath())
	if err != nil {
		return nil, nil, err
	}

	canon = &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     decoded,
		RawPath:  escaped,
		RawQuery: sortQuery(u.RawQuery),
	}
	target = &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	if target.Path == "" {
		target.Path = "/"
	}
	return canon, target, nil
}

// canonicalPath cleans an escaped path segment by segment. It returns the
// decoded path and a uniformly re-escaped form in which an encoded slash
// such as "a%2Fb" remains a single segment.
func canonicalPath(escaped string) (string, string, error) {
	var segs []string
	for _, seg := range strings.Split(escaped, "/") {
		s, err := url.PathUnescape(seg)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	enc := make([]string, len(segs))
	for i, s := range segs {
		enc[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segs, "/"), "/" + strings.Join(enc, "/"), nil
}

// canonicalHost lower-cases the host, strips a trailing dot and drops the
// port when it is the scheme default.
func canonicalHost(scheme, hostport string) (string, error) {
	hostname, port := hostport, ""
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		hostname, port = h, p
	} else if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
		hostname = hostport[1 : len(hostport)-1]
	}

	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	if hostname == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidLink)
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}

	if port != "" {
		return net.JoinHostPort(hostname, port), nil
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]", nil
	}
	return hostname, nil
}

// cleanPath removes empty, "." and ".." segments and the trailing slash.
// The root is always "/".
func cleanPath(p string) string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}

// sortQuery orders query parameters by name, keeping their encoding and
// the relative order of repeated names. Empty parameters are dropped.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var params []string
	for _, p := range strings.Split(rawQuery, "&") {
		if p != "" {
			params = append(params, p)
		}
	}
	sort.SliceStable(params, func(i, j int) bool {
		return queryName(params[i]) < queryName(params[j])
	})
	return strings.Join(params, "&")
}

func queryName(param string) string {
	name, _, _ := strings.Cut(param, "=")
	return name
}

// allowed applies ignore and follow patterns to a URL path.
// Ignore patterns win; when follow patterns are set, one must match.
func (n *Normalizer) allowed(p string) bool {
	for _, pattern := range n.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(n.followPatterns) == 0 {
		return true
	}
	for _, pattern := range n.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/dashboard" and "/admin/a/b"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
		return true
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}
