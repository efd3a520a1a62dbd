package errors

import (
	stderrors "errors"
	"regexp"
	"strconv"

	"github.com/goccy/go-yaml/token"
)

// tokenError is implemented by goccy/go-yaml decoding errors.
type tokenError interface {
	error
	GetToken() *token.Token
}

// yamlPosition matches the "[line:column]" prefix of goccy/go-yaml messages.
var yamlPosition = regexp.MustCompile(`\[(\d+):(\d+)\]`)

// YAMLPosition returns the line and column a YAML decoding error points at.
func YAMLPosition(err error) (line, column int, ok bool) {
	if err == nil {
		return 0, 0, false
	}
	var te tokenError
	if stderrors.As(err, &te) {
		if tk := te.GetToken(); tk != nil && tk.Position != nil && tk.Position.Line > 0 {
			return tk.Position.Line, tk.Position.Column, true
		}
	}
	m := yamlPosition.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, 0, false
	}
	line, _ = strconv.Atoi(m[1])
	column, _ = strconv.Atoi(m[2])
	return line, column, line > 0
}

// WithYAMLLocation points the error at the position of a YAML decoding error
// in file. Errors without a position leave e unchanged.
func (e *StateError) WithYAMLLocation(file string, err error) *StateError {
	if line, column, ok := YAMLPosition(err); ok {
		return e.WithLocation(file, line, column)
	}
	return e
}
