package services

import "errors"

// ErrNotFound is returned by a lookup when no row matches; callers map it
// to a 404 at the API boundary or a "not found" CLI exit message.
var ErrNotFound = errors.New("not found")
