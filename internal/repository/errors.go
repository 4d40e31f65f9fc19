// Package repository is the MySQL persistence layer.  It defines
// sentinel errors shared across repositories so handlers can map
// failure cases onto HTTP responses without inspecting SQL errors.
package repository

import "errors"

// ErrPlayNotFound is returned by catalog lookups when no play with the
// requested id exists.  Handlers translate it into a 404.
var ErrPlayNotFound = errors.New("play not found")
