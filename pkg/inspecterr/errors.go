// Package inspecterr defines the error taxonomy shared by the navigation core.
//
// Every sentinel is a github.com/jmgilman/go/errors PlatformError, so callers
// can branch on errors.Is for the condition, on errors.GetCode for transport
// mapping, and on errors.IsRetryable for the busy case.
package inspecterr

import (
	"github.com/jmgilman/go/errors"
)

var (
	// ErrUnsupportedFormat is returned by a decoder for an unregistered type tag.
	ErrUnsupportedFormat = errors.New(errors.CodeNotImplemented, "unsupported format")

	// ErrCacheBusy rejects a navigation request while prefetch tasks of the
	// previous step are still in flight. It is retryable.
	ErrCacheBusy = errors.New(errors.CodeUnavailable, "prefetch in flight, retry when finished")

	// ErrSourceMismatch reports sources with differing non-zero lengths.
	// Navigation still proceeds over the shortest one.
	ErrSourceMismatch = errors.New(errors.CodeConflict, "source lengths do not match")

	// ErrEmptySourceSet reports that no active source has any files.
	ErrEmptySourceSet = errors.New(errors.CodeNotFound, "no source has any files")

	// ErrDuplicateSource rejects a source whose name is already registered.
	ErrDuplicateSource = errors.New(errors.CodeAlreadyExists, "source name already registered")

	// ErrUnknownSource is returned for operations on a name that is not registered.
	ErrUnknownSource = errors.New(errors.CodeNotFound, "unknown source")
)

