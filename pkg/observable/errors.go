package observable

import (
	"errors"
	"strings"
)

// ErrLocked is returned by any mutation attempted while the tree is locked
// via LockObservable. Nothing is written and no listener fires.
var ErrLocked = errors.New("observable: cannot modify a locked observable")

// ErrReadOnly is returned when Set, Assign, Delete or Toggle is called on a
// computed value or one of its children.
var ErrReadOnly = errors.New("observable: computed values are read-only")

// ErrInvalidAssign is returned when Assign targets a node whose current value
// is a primitive.
var ErrInvalidAssign = errors.New("observable: cannot assign into a primitive value")

// ErrInvalidToggle is returned when Toggle targets a node whose value is not
// a bool. The value is left unchanged.
var ErrInvalidToggle = errors.New("observable: cannot toggle a non-boolean value")

// ErrInvalidIndex is returned when a non-numeric or negative key is written
// beneath an array.
var ErrInvalidIndex = errors.New("observable: invalid array index")

// ErrPromiseRejected wraps the error of a rejected promise that was stored at
// a node. It is only ever passed to rejection handlers.
var ErrPromiseRejected = errors.New("observable: promise rejected")

// PathError records a failed operation and the path it targeted.
type PathError struct {
	Op   Op
	Path []string
	Err  error
}

func (e *PathError) Error() string {
	p := strings.Join(e.Path, ".")
	if p == "" {
		p = "<root>"
	}
	return string(e.Op) + " " + p + ": " + e.Err.Error()
}

// Unwrap returns the underlying sentinel for errors.Is support.
func (e *PathError) Unwrap() error {
	return e.Err
}

func pathError(op Op, path []string, err error) error {
	recordError(op, err)
	return &PathError{Op: op, Path: path, Err: err}
}
