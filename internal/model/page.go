package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Page is the result of rendering one URL.
// It carries the rendered document together with the raw outbound links
// found in it; links are resolved and filtered by the crawler, not here.
type Page struct {
	// Key is the canonical URL key the page was scheduled under.
	Key string `json:"key"`

	// URL is the address that was requested.
	URL string `json:"url"`

	// FinalURL is the address after redirects.
	// Relative links in the document are resolved against it.
	FinalURL string `json:"final_url"`

	// StatusCode is the HTTP status of the main document response.
	// Zero when the renderer could not observe it.
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type of the main document.
	ContentType string `json:"content_type,omitempty"`

	// Title is the document title.
	Title string `json:"title,omitempty"`

	// HTML is the serialized rendered document.
	HTML []byte `json:"-"`

	// Links are the raw href values of outbound links, in document order.
	Links []string `json:"links,omitempty"`

	// BaseURL is the document's <base href>, already resolved, if present.
	BaseURL string `json:"base_url,omitempty"`

	// Hash is the SHA-256 of HTML.
	Hash string `json:"hash"`

	// FetchedAt is when rendering finished.
	FetchedAt time.Time `json:"fetched_at"`

	// Duration is how long rendering took.
	Duration time.Duration `json:"duration"`
}

// ComputeHash sets Hash from the current HTML content.
func (p *Page) ComputeHash() {
	if len(p.HTML) == 0 {
		p.Hash = ""
		return
	}
	sum := sha256.Sum256(p.HTML)
	p.Hash = hex.EncodeToString(sum[:])
}

// LinkBase returns the URL relative links should be resolved against:
// the document base, else the final URL, else the requested URL.
func (p *Page) LinkBase() string {
	switch {
	case p.BaseURL != "":
		return p.BaseURL
	case p.FinalURL != "":
		return p.FinalURL
	default:
		return p.URL
	}
}
