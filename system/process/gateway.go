package process

import (
	"fmt"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// conditionLanguage extends gval's full default language with jsonpath's
// "$.foo.bar" selector syntax, so a branch condition can reach into a
// nested variables value (e.g. `$.customer.tier == "gold"`) the same way
// it reaches a top-level one (`amount <= 1000`).
var conditionLanguage = gval.Full(jsonpath.Language())

// evalCondition evaluates a gval boolean expression against instance
// variables. Per spec.md §9, names that are not present in variables
// evaluate to false rather than erroring — gval's default language treats
// an unresolved identifier as an evaluation error, so evalCondition matches
// that error with isUnknownParameterErr and returns false instead.
func evalCondition(expr string, variables map[string]any) (bool, error) {
	if expr == "" {
		return false, nil
	}
	val, err := conditionLanguage.Evaluate(expr, variables)
	if err != nil {
		if isUnknownParameterErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("evaluate condition %q: %w", expr, err)
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean (got %T)", expr, val)
	}
	return b, nil
}

// isUnknownParameterErr reports whether err is gval's "unknown parameter"
// class of error, produced when an expression references a variable name
// absent from the evaluation scope.
func isUnknownParameterErr(err error) bool {
	// gval wraps missing-identifier lookups in an error whose message
	// contains "unknown parameter" — there is no exported sentinel, so we
	// match on that substring, which is stable across gval's releases.
	return containsFold(err.Error(), "unknown parameter")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		match := true
		for j := 0; j < m; j++ {
			a, b := s[i+j], substr[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// selectBranch evaluates a gateway's branches in declaration order, picking
// the first matching when(); falls back to the otherwise branch if none
// match. Returns an error if no branch matches and there is no otherwise.
func selectBranch(gatewayID string, branches []Branch, variables map[string]any) (Branch, error) {
	var otherwise *Branch
	for i := range branches {
		br := branches[i]
		if br.IsOtherwise {
			otherwise = &branches[i]
			continue
		}
		matched, err := evalCondition(br.Condition, variables)
		if err != nil {
			return Branch{}, err
		}
		if matched {
			return br, nil
		}
	}
	if otherwise != nil {
		return *otherwise, nil
	}
	return Branch{}, fmt.Errorf("gateway %s: no branch matched and no otherwise defined", gatewayID)
}
