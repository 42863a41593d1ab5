package remote

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when the remote store has no blob for a hash.
var ErrNotFound = errors.New("remote: blob not found")

// TransientError marks a failure that may succeed if the request is
// repeated: transport errors and 5xx responses. The client performs no
// retries itself; callers decide.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
