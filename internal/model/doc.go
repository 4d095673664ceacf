// Package model defines the data structures shared by the crawler,
// the converters, the writer and the reporting layer of websaver.
// It holds pages, output formats, artifacts and run summaries.
package model
