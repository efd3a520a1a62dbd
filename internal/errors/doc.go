// Package errors provides structured, actionable error messages for the
// statetree command.
//
// Every error has a code (e.g. "S001") mapped to a category, a short message
// and a longer explanation. Errors returned by the observable core and the
// scenario runner are mapped to codes by Classify.
//
// # Categories
//
//   - runtime: mutations rejected by the tree (locked, read-only, ...)
//   - scenario: scenario documents and steps
//   - config: statetree.yaml loading and validation
//   - cli: command usage and server startup
//
// # Usage
//
//	err := errors.New("S011").
//	    WithLocation("counter.yaml", 14, 0).
//	    WithSuggestion("Check the value the expect step compares against")
//
//	fmt.Print(err.Format())
//	// ERROR S011: Expectation failed
//	//
//	//   counter.yaml:14
//	//
//	//       12 │   - op: expect
//	//       13 │     path: count
//	//   →   14 │     value: 3
//	//       15 │
//	//
//	//   Hint: Check the value the expect step compares against
package errors
