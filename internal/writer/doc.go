// Package writer persists artifacts under an output root.
//
// Files are written atomically: content goes to a temporary file in the
// destination directory which is then renamed into place, so an
// interrupted run never leaves a truncated artifact behind. When two
// different URLs map to the same path the later one gets a numeric suffix.
package writer
