// Package render fetches pages and returns their final document.
//
// Two engines are provided. BrowserRenderer drives a headless Chromium
// through go-rod, letting scripts run before the DOM is captured, and also
// prints documents to PDF. HTTPRenderer issues plain HTTP requests and is
// useful for static sites or environments without a browser.
//
// Both engines extract the title, <base href> and raw links of the document
// with internal/parser, so the crawler sees identical pages whichever engine
// produced them.
package render
