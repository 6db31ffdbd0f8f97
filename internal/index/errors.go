package index

import (
	"errors"
	"fmt"

	"github.com/roach88/activerules/internal/ir"
)

var (
	// ErrWriteRejected is wrapped by every *WriteError.
	ErrWriteRejected = errors.New("index write rejected")

	// ErrVisibilityTimeout is returned by Refresh when its context ends
	// before pending writes are applied. The writes are kept and will be
	// applied by a later refresh.
	ErrVisibilityTimeout = errors.New("index visibility timeout")

	// ErrIndexClosed is returned by operations on a closed Index.
	ErrIndexClosed = errors.New("index closed")

	// ErrParentCycle is the cause of a rejected write whose parent chain
	// loops back to the document itself.
	ErrParentCycle = errors.New("parent chain forms a cycle")
)

// WriteError reports a rejected Upsert or Delete.
type WriteError struct {
	Key    ir.ActiveRuleKey
	Reason string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s: %s", ErrWriteRejected, e.Key, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s: %v", ErrWriteRejected, e.Key, e.Reason, e.Err)
}

// Is makes errors.Is(err, ErrWriteRejected) hold for every WriteError.
func (e *WriteError) Is(target error) bool {
	return target == ErrWriteRejected
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func rejected(key ir.ActiveRuleKey, reason string, err error) *WriteError {
	return &WriteError{Key: key, Reason: reason, Err: err}
}
