package rmx

import "github.com/pkg/errors"

var (
	// ErrNotFound reports a path or id that does not resolve in the
	// current hierarchy.
	ErrNotFound = errors.New("rmx: not found")

	// ErrNotSynced reports an operation that needs a hierarchy before
	// any sync has completed.
	ErrNotSynced = errors.New("rmx: no hierarchy available, sync first")

	// ErrIsCollection reports a document operation on a folder.
	ErrIsCollection = errors.New("rmx: entry is a collection")

	// ErrUnsupportedFormat reports a document whose manifest matches no
	// known export format.
	ErrUnsupportedFormat = errors.New("rmx: unsupported document format")
)
