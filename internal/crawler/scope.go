package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ScopeMode selects which hosts belong to a crawl.
type ScopeMode string

const (
	// ScopeOrigin accepts links with the seed's scheme, host and port.
	ScopeOrigin ScopeMode = "origin"

	// ScopeHost accepts links to the seed's host on any scheme or port.
	ScopeHost ScopeMode = "host"

	// ScopeDomain accepts links anywhere under the seed's registrable
	// domain, so a www.example.com seed also covers docs.example.com.
	ScopeDomain ScopeMode = "domain"
)

// ParseScopeMode converts a name into a ScopeMode.
func ParseScopeMode(name string) (ScopeMode, error) {
	switch m := ScopeMode(strings.ToLower(strings.TrimSpace(name))); m {
	case ScopeOrigin, ScopeHost, ScopeDomain:
		return m, nil
	case "":
		return ScopeOrigin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScope, name)
	}
}

// Scope decides whether a canonical URL belongs to the crawl.
// A Scope is immutable once built and safe for concurrent use.
type Scope struct {
	mode       ScopeMode
	scheme     string
	host       string // canonical host, port included when not default
	hostname   string
	domain     string
	pathPrefix string
}

// NewScope derives a scope from a canonical seed URL.
// pathPrefix, when not empty or "/", limits the crawl to that subtree.
func NewScope(seed *url.URL, mode ScopeMode, pathPrefix string) (*Scope, error) {
	if seed == nil || seed.Host == "" {
		return nil, ErrInvalidSeed
	}
	if mode == "" {
		mode = ScopeOrigin
	}
	if _, err := ParseScopeMode(string(mode)); err != nil {
		return nil, err
	}

	s := &Scope{
		mode:     mode,
		scheme:   seed.Scheme,
		host:     seed.Host,
		hostname: seed.Hostname(),
	}

	// IP addresses and single label hosts such as localhost have no
	// registrable domain; they fall back to an exact host match.
	s.domain = s.hostname
	if net.ParseIP(s.hostname) == nil {
		if domain, err := publicsuffix.EffectiveTLDPlusOne(s.hostname); err == nil {
			s.domain = domain
		}
	}

	if p := cleanPath(pathPrefix); p != "/" {
		s.pathPrefix = p
	}
	return s, nil
}

// Mode returns the scope mode.
func (s *Scope) Mode() ScopeMode {
	return s.mode
}

// Contains reports whether a canonical URL is inside the scope.
func (s *Scope) Contains(u *url.URL) bool {
	if !s.hostMatches(u) {
		return false
	}
	if s.pathPrefix == "" {
		return true
	}
	return u.Path == s.pathPrefix || strings.HasPrefix(u.Path, s.pathPrefix+"/")
}

func (s *Scope) hostMatches(u *url.URL) bool {
	switch s.mode {
	case ScopeHost:
		return u.Hostname() == s.hostname
	case ScopeDomain:
		h := u.Hostname()
		return h == s.domain || strings.HasSuffix(h, "."+s.domain)
	default:
		return u.Scheme == s.scheme && u.Host == s.host
	}
}

// String describes the scope for logs.
func (s *Scope) String() string {
	var target string
	switch s.mode {
	case ScopeHost:
		target = s.hostname
	case ScopeDomain:
		target = "*." + s.domain
	default:
		target = s.scheme + "://" + s.host
	}
	if s.pathPrefix != "" {
		target += s.pathPrefix
	}
	return fmt.Sprintf("%s(%s)", s.mode, target)
}
