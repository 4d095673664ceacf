// Package config provides configuration structures and utilities for websaver.
// It defines crawl settings, output format selection, browser options and
// report preferences, and loads per-site overrides from a YAML file.
package config
