package storage

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates the requested blob does not exist.
	ErrNotFound = errors.New("blob not found")
	// ErrExists indicates Create found an object already stored under the
	// key. Artifact versions are immutable, so callers treat it as done.
	ErrExists = errors.New("blob already exists")
	// ErrEmptyKey indicates an empty object key.
	ErrEmptyKey = errors.New("blob key must not be empty")
	// ErrInvalidKey indicates a key with a ".." segment.
	ErrInvalidKey = errors.New("blob key contains invalid path segment")
	// ErrUnknownBucket indicates a bucket outside the configured artifact
	// kinds (cas-files, ro-html-output, crawler-items by default).
	ErrUnknownBucket = errors.New("unknown storage bucket")
)

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExists):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyKey),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrUnknownBucket):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
