package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

var registry = map[string]ErrorTemplate{
	// Runtime (S001-S009)
	"S001": {
		Category:   CategoryRuntime,
		Message:    "State is locked",
		Detail:     "The tree was locked, so every write under its root is rejected until it is unlocked.",
		Suggestion: "Unlock the tree (op: unlock, or DELETE /lock) before writing",
	},
	"S002": {
		Category:   CategoryRuntime,
		Message:    "Write to a read-only value",
		Detail:     "Computed values are derived from their dependencies and cannot be written directly.",
		Suggestion: "Write to one of the values the computed reads instead",
	},
	"S003": {
		Category:   CategoryRuntime,
		Message:    "Cannot assign into a primitive value",
		Detail:     "Assign merges keys into an object. The target holds a string, number or boolean.",
		Suggestion: "Use set to replace the value, or assign to its parent",
	},
	"S004": {
		Category:   CategoryRuntime,
		Message:    "Cannot toggle a non-boolean value",
		Detail:     "Toggle flips true and false. Missing keys and other types are rejected.",
		Suggestion: "Set the value to true or false first",
	},
	"S005": {
		Category: CategoryRuntime,
		Message:  "Invalid array index",
		Detail:   "Array children are addressed by non-negative decimal indexes without leading zeros.",
	},
	"S006": {
		Category: CategoryRuntime,
		Message:  "Promise rejected",
		Detail:   "An asynchronous value stored in the tree failed. The node keeps a nil value.",
	},

	// Scenario (S010-S020)
	"S010": {
		Category:   CategoryScenario,
		Message:    "Scenario file not readable",
		Suggestion: "Check the path passed to statetree run",
	},
	"S011": {
		Category:   CategoryScenario,
		Message:    "Expectation failed",
		Detail:     "An expect step compared the value at its path with a different value.",
		Suggestion: "Run with --diff to see how each step changed the state",
	},
	"S012": {
		Category:   CategoryScenario,
		Message:    "Unknown step op",
		Suggestion: "Use one of: set, assign, delete, toggle, push, splice, batch, when, lock, unlock, patch, expect",
	},
	"S013": {
		Category: CategoryScenario,
		Message:  "Malformed step",
		Detail:   "The step's fields do not fit its op, or one of its expressions failed.",
	},
	"S014": {
		Category: CategoryScenario,
		Message:  "Expected failure did not occur",
		Detail:   "The step declared an error kind but succeeded or failed differently.",
	},
	"S015": {
		Category: CategoryScenario,
		Message:  "Invalid scenario",
		Detail:   "The scenario decoded but declares duplicate names, unknown tracking modes or incomplete steps.",
	},
	"S020": {
		Category:   CategoryScenario,
		Message:    "Scenario parse error",
		Detail:     "The scenario is not valid YAML or has fields the runner does not know.",
		Suggestion: "Scenario keys are: name, state, watch, computed, steps",
	},

	// Config (S030-S039)
	"S030": {
		Category: CategoryConfig,
		Message:  "Config parse error",
		Detail:   "statetree.yaml (or statetree.json) could not be decoded.",
	},
	"S031": {
		Category: CategoryConfig,
		Message:  "Invalid config",
	},
	"S032": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Create statetree.yaml or pass --config",
	},

	// CLI (S040-S049)
	"S040": {
		Category: CategoryCLI,
		Message:  "Inspector failed",
		Detail:   "The inspector HTTP server stopped with an error.",
	},
	"S041": {
		Category: CategoryCLI,
		Message:  "State file not readable",
		Detail:   "The --state file must hold a JSON or YAML document.",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
