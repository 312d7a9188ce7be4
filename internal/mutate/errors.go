package mutate

import "fmt"

// ErrorKind classifies a per-op execution failure.
type ErrorKind string

const (
	// ErrTypeMismatch: the op's target holds a value of the wrong type
	// for the operation (incrementing a string, appending to a record).
	ErrTypeMismatch ErrorKind = "TypeMismatch"

	// ErrInsufficientValue: a transfer source holds less than the
	// requested amount.
	ErrInsufficientValue ErrorKind = "InsufficientValue"
)

// OpError reports one failed op within a batch. Index is the op's
// position in the submitted batch, stable across alias expansion so the
// extraction pipeline can point the collaborator at the offending op.
type OpError struct {
	Index   int       `json:"index"`
	Kind    ErrorKind `json:"kind"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op %d (%s) at %s: %s", e.Index, e.Kind, e.Path, e.Message)
}
