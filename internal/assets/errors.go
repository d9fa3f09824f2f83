package assets

import "errors"

var (
	// ErrBuildFailed indicates esbuild reported one or more errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrSassUnavailable indicates a sass source was found but no compiler is configured
	ErrSassUnavailable = errors.New("sass compiler not configured")
	// ErrNoEntryPoints indicates the plan has nothing to bundle
	ErrNoEntryPoints = errors.New("no entry points found")
)
