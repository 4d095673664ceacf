package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Artifact is one converted representation of a page, ready to be written.
type Artifact struct {
	// URL is the canonical key of the page the artifact was produced from.
	URL string `json:"url"`

	// Format is the representation held in Content.
	Format Format `json:"format"`

	// Path is the slash separated location relative to the output root.
	Path string `json:"path"`

	// Content is the serialized artifact.
	Content []byte `json:"-"`
}

// maxSegmentLength bounds a single path segment so that long slugs stay
// below common filesystem name limits once the extension is added.
const maxSegmentLength = 160

// pageExtensions are server-side extensions replaced by the artifact extension.
var pageExtensions = map[string]bool{
	".html":  true,
	".htm":   true,
	".xhtml": true,
	".shtml": true,
	".php":   true,
	".asp":   true,
	".aspx":  true,
	".jsp":   true,
	".cgi":   true,
}

// unsafeChars are replaced in path segments.
var unsafeChars = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "?", "_", ":", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", "\x00", "_",
)

// ArtifactPath derives the output path of a page for the given format.
//
// The root page maps to "index.<ext>", "/a/b" maps to "a/b.<ext>" and a
// query string adds a short hash suffix so that "/list?page=2" does not
// overwrite "/list". The result depends only on the key and the format.
func ArtifactPath(key string, format Format) (string, error) {
	u, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("invalid url key %q: %w", key, err)
	}

	// Split the escaped path so an encoded slash stays inside its segment.
	trimmed := strings.Trim(u.EscapedPath(), "/")
	var segments []string
	if trimmed != "" {
		for _, raw := range strings.Split(trimmed, "/") {
			if raw == "" {
				continue
			}
			seg, err := url.PathUnescape(raw)
			if err != nil {
				seg = raw
			}
			segments = append(segments, sanitizeSegment(seg))
		}
	}
	if len(segments) == 0 {
		segments = []string{"index"}
	}

	last := segments[len(segments)-1]
	if ext := path.Ext(last); pageExtensions[strings.ToLower(ext)] {
		last = strings.TrimSuffix(last, ext)
		if last == "" {
			last = "index"
		}
	}
	if u.RawQuery != "" {
		last += "_" + shortHash(u.RawQuery)
	}
	segments[len(segments)-1] = last + "." + format.Extension()

	return strings.Join(segments, "/"), nil
}

// sanitizeSegment makes a single decoded path segment safe to use as a
// file or directory name.
func sanitizeSegment(s string) string {
	s = norm.NFC.String(s)
	s = unsafeChars.Replace(s)
	s = strings.TrimSpace(s)
	switch s {
	case "", ".", "..":
		return "_"
	}
	// A leading dot would create hidden files.
	if strings.HasPrefix(s, ".") {
		s = "_" + s[1:]
	}
	if len(s) > maxSegmentLength {
		s = truncateUTF8(s, maxSegmentLength) + "_" + shortHash(s)
	}
	return s
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
