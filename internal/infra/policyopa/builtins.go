package policyopa

import "github.com/open-policy-agent/opa/ast"

// Verification must not depend on time, randomness or the network, so only
// pure builtins are available to bundles.
var allowedBuiltins = map[string]struct{}{
	"abs":        {},
	"assign":     {},
	"ceil":       {},
	"concat":     {},
	"contains":   {},
	"count":      {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"floor":      {},
	"format_int": {},
	"gt":         {},
	"gte":        {},
	"lower":      {},
	"lt":         {},
	"lte":        {},
	"max":        {},
	"min":        {},
	"neq":        {},
	"object.get": {},
	"round":      {},
	"sort":       {},
	"sprintf":    {},
	"startswith": {},
	"sum":        {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; ok {
			allowed = append(allowed, builtin)
		}
	}
	return allowed
}
