package render

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrHTTPStatus is matched by a StatusError.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrUnsupportedContent is returned when a response is not an HTML document.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrBodyTooLarge is returned when a response exceeds the body size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrUnsupportedProxy is returned for proxy URLs that are neither HTTP nor SOCKS5.
	ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

	// ErrBrowserLaunch is returned when the browser cannot be started or reached.
	ErrBrowserLaunch = errors.New("failed to launch browser")

	// ErrBrowserClosed is returned when rendering with a closed browser.
	ErrBrowserClosed = errors.New("browser is closed")
)

// StatusError reports a document response with an error status.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports whether target is ErrHTTPStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}
