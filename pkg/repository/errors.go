// Package repository holds errors shared by every storage backend.
package repository

import "github.com/m-mizutani/goerr/v2"

// ErrNotFound is returned by any backend when an addressed record does not
// exist. Callers branch on it with errors.Is without knowing which backend
// served the request.
var ErrNotFound = goerr.New("record not found")
