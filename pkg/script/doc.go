// Package script runs YAML scenarios against an observable tree.
//
// A scenario declares an initial state, the paths to watch, computed values
// written as expr-lang expressions and a list of mutation steps:
//
//	name: counter
//	state:
//	  count: 0
//	watch:
//	  - path: count
//	computed:
//	  - name: double
//	    expr: 'get("count") * 2'
//	steps:
//	  - op: set
//	    path: count
//	    value: 2
//	  - op: expect
//	    path: count
//	    value: 2
//
// Run executes the steps in order and reports every notification the
// watchers received. Expressions can call get(path) for a tracked read,
// peek(path) for an untracked one, keys(path) and computed(name).
package script
