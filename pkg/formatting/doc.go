// Package formatting provides human-readable formatting and parsing utilities
// for byte sizes and bounded text fields.
package formatting
