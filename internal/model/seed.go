package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSeedScheme is returned when a seed names a scheme other than http or https.
var ErrSeedScheme = errors.New("seed scheme must be http or https")

var (
	// schemePrefix matches a leading RFC 3986 scheme and the rest of the seed.
	schemePrefix = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):(.*)$`)

	// portPrefix matches what follows "host:" in a scheme-less seed.
	portPrefix = regexp.MustCompile(`^[0-9]+([/?#].*)?$`)
)

// CompleteSeed fills in https when the seed carries no scheme.
//
// "example.com/docs" and "localhost:8080" gain https. A seed with an
// explicit scheme is returned as is when the scheme is http or https
// and rejected with ErrSeedScheme otherwise, so "mailto:me@example.com"
// and "ftp://example.com" are never turned into web addresses.
func CompleteSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	m := schemePrefix.FindStringSubmatch(raw)
	if m == nil || portPrefix.MatchString(m[2]) {
		return "https://" + raw, nil
	}
	switch strings.ToLower(m[1]) {
	case "http", "https":
		return raw, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrSeedScheme, m[1])
	}
}
