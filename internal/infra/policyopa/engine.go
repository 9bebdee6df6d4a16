// Package policyopa evaluates receipt verification policy with OPA.
package policyopa

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"receipts/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const (
	defaultQuery    = "data.receipts.policy.result"
	DefaultBundleID = "default"
)

//go:embed bundles/default/*.rego
var embeddedBundles embed.FS

type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
	bundleID   string
}

// NewDefaultEngine compiles the bundle shipped with the binary.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	bundle, err := fs.Sub(embeddedBundles, "bundles/default")
	if err != nil {
		return nil, err
	}
	return NewEngineFromFS(ctx, bundle, DefaultBundleID)
}

// NewEngineFromFS compiles every normative .rego file of fsys.
func NewEngineFromFS(ctx context.Context, fsys fs.FS, bundleID string) (*Engine, error) {
	bundleHash, err := ComputeBundleHashFromFS(fsys, ".")
	if err != nil {
		return nil, err
	}
	files, err := collectBundleFiles(fsys, ".")
	if err != nil {
		return nil, err
	}
	var opts []func(*rego.Rego)
	for _, file := range files {
		if path.Ext(file.Path) != ".rego" {
			continue
		}
		src, err := fs.ReadFile(fsys, file.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rego.Module(file.Path, string(src)))
	}
	if len(opts) == 0 {
		return nil, errors.New("policy bundle has no rego modules")
	}
	return prepare(ctx, bundleHash, bundleID, opts...)
}

// NewEngineFromBundlePath loads a bundle directory, including data files.
func NewEngineFromBundlePath(ctx context.Context, bundlePath string, bundleID string) (*Engine, error) {
	bundleHash, err := ComputeBundleHashFromPath(bundlePath)
	if err != nil {
		return nil, err
	}
	return prepare(ctx, bundleHash, bundleID, rego.Load([]string{bundlePath}, nil))
}

func prepare(ctx context.Context, bundleHash, bundleID string, opts ...func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	opts = append(opts,
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	)
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", bundleID, err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{
		query:      prepared,
		bundleHash: bundleHash,
		bundleID:   bundleID,
	}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) BundleID() string {
	return e.bundleID
}

func (e *Engine) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	if e == nil {
		return domain.PolicyEvaluation{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyEvaluation{}, errors.New("empty policy result")
	}
	result, err := decodePolicyResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code == result.Deny[j].Code {
			return result.Deny[i].Message < result.Deny[j].Message
		}
		return result.Deny[i].Code < result.Deny[j].Code
	})
	// a bundle that forgets to populate allow must not pass receipts
	if len(result.Deny) > 0 {
		result.Allow = false
	}
	return domain.PolicyEvaluation{
		BundleID:   e.bundleID,
		BundleHash: e.bundleHash,
		Result:     result,
	}, nil
}

func decodePolicyResult(value any) (domain.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, fmt.Errorf("decode policy result: %w", err)
	}
	return result, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; !ok {
				forbidden[name] = struct{}{}
			}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
