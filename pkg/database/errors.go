package database

import "errors"

// ErrNotReady indicates PostgreSQL could not be reached. The /readyz check
// report it and pipeline stages treat it as a stage-level failure.
var ErrNotReady = errors.New("database not ready")
