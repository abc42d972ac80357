// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import "errors"

// Error kinds surfaced by the store. Callers match with errors.Is.
var (
	// ErrConflict reports a put whose stable id already exists with
	// different content and no overwrite permission.
	ErrConflict = errors.New("content conflict")

	// ErrNotFound reports a reference to a nonexistent paper or entry.
	ErrNotFound = errors.New("not found")
)
