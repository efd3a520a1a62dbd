package errors

import (
	stderrors "errors"
	"io/fs"

	"github.com/vango-dev/statetree/pkg/observable"
	"github.com/vango-dev/statetree/pkg/script"
)

var codes = []struct {
	err  error
	code string
}{
	{observable.ErrLocked, "S001"},
	{observable.ErrReadOnly, "S002"},
	{observable.ErrInvalidAssign, "S003"},
	{observable.ErrInvalidToggle, "S004"},
	{observable.ErrInvalidIndex, "S005"},
	{observable.ErrPromiseRejected, "S006"},
	{script.ErrExpectation, "S011"},
	{script.ErrUnknownOp, "S012"},
	{script.ErrExpectedFailure, "S014"},
	{script.ErrBadStep, "S013"},
	{script.ErrInvalidScenario, "S015"},
	{script.ErrParse, "S020"},
	{fs.ErrNotExist, "S010"},
}

// Classify wraps err in a StateError whose code matches the first known
// sentinel in its chain. Unknown errors get no code.
func Classify(err error) *StateError {
	if err == nil {
		return nil
	}
	var se *StateError
	if stderrors.As(err, &se) {
		return se
	}
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return New(c.code).Wrap(err)
		}
	}
	return Newf(CategoryCLI, "%v", err)
}
