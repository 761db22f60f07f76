package storage

import "complyd/pkg/platform/sentinel"

// ErrNotFound keeps storage-specific 404s consistent across in-memory and
// future implementations.
var ErrNotFound = sentinel.ErrNotFound
