package policy

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed authz.rego
var defaultModule string

// OPAPolicyEngine evaluates decisions with a Rego module.
type OPAPolicyEngine struct {
	allow   rego.PreparedEvalQuery
	matched rego.PreparedEvalQuery
}

// NewOPAPolicyEngine compiles module, or the built-in policy when module is
// empty. The module must define data.notify.authz.allow and
// data.notify.authz.matched.
func NewOPAPolicyEngine(ctx context.Context, module string) (*OPAPolicyEngine, error) {
	if module == "" {
		module = defaultModule
	}

	allow, err := rego.New(
		rego.Query("data.notify.authz.allow"),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing allow query: %w", err)
	}

	matched, err := rego.New(
		rego.Query("data.notify.authz.matched"),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing matched query: %w", err)
	}

	return &OPAPolicyEngine{allow: allow, matched: matched}, nil
}

func (e *OPAPolicyEngine) Check(ctx context.Context, pctx *PolicyContext) (*PolicyResult, error) {
	roles := make([]string, 0, len(pctx.Roles))
	for _, r := range pctx.Roles {
		roles = append(roles, string(r))
	}
	input := map[string]interface{}{
		"user":     pctx.UserID,
		"roles":    roles,
		"action":   string(pctx.Action),
		"resource": pctx.Resource,
	}

	rs, err := e.allow.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating policy: %w", err)
	}

	result := &PolicyResult{Allowed: rs.Allowed(), Rules: make([]string, 0)}
	if !result.Allowed {
		result.Reason = "no matching policy found"
		return result, nil
	}

	rules, err := e.matched.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating matched rules: %w", err)
	}
	if len(rules) > 0 && len(rules[0].Expressions) > 0 {
		if set, ok := rules[0].Expressions[0].Value.([]interface{}); ok {
			for _, v := range set {
				if s, ok := v.(string); ok {
					result.Rules = append(result.Rules, s)
				}
			}
		}
	}
	sort.Strings(result.Rules)
	result.Reason = "allowed by policy"
	return result, nil
}
