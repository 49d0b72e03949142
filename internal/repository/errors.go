package repository

import "errors"

// ErrNotFound indicates no rows matched: an unknown repository hash or a
// usage snapshot that has not been stored yet.
var ErrNotFound = errors.New("repository: not found")
