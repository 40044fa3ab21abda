package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// ErrDenied is returned when the policy rejects the request.
var ErrDenied = errors.New("policy: permission denied")

const ownerQuery = "data.account.access.allow"

// Default Rego policy: a caller may act on an account only when it owns it. Linking additionally
// requires proof of ownership of the secondary account.
const defaultRegoPolicy = `package account.access

default allow = false

allow if {
	input.action != "link"
	input.principal.account_id != ""
	input.principal.account_id == input.resource.account_id
}

allow if {
	input.action == "link"
	input.principal.account_id != ""
	input.principal.account_id == input.resource.account_id
	input.secondary.account_id != ""
	input.secondary.account_id == input.resource.secondary_account_id
}
`

// Request is the input to an ownership check.
type Request struct {
	Action string
	// PrincipalID is the account resolved from the caller's access token.
	PrincipalID string
	// ResourceID is the account the action targets.
	ResourceID string
	// SecondaryPrincipalID is the account resolved from a second access token (link only).
	SecondaryPrincipalID string
	// SecondaryResourceID is the account being absorbed (link only).
	SecondaryResourceID string
}

// OPAEvaluator evaluates ownership policies using OPA Rego. The query is prepared once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (or the built-in owner-only policy when empty).
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(ownerQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// Authorize returns nil when the policy allows req and ErrDenied otherwise. Evaluation failures
// deny.
func (e *OPAEvaluator) Authorize(ctx context.Context, req Request) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(req)))
	if err != nil {
		return fmt.Errorf("%w: eval: %v", ErrDenied, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return ErrDenied
	}
	if allowed, ok := rs[0].Expressions[0].Value.(bool); !ok || !allowed {
		return ErrDenied
	}
	return nil
}

// HealthCheck evaluates a minimal allowed request against the compiled policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	return e.Authorize(ctx, Request{Action: "health", PrincipalID: "healthcheck", ResourceID: "healthcheck"})
}

func buildInput(req Request) map[string]interface{} {
	return map[string]interface{}{
		"action": req.Action,
		"principal": map[string]interface{}{
			"account_id": req.PrincipalID,
		},
		"secondary": map[string]interface{}{
			"account_id": req.SecondaryPrincipalID,
		},
		"resource": map[string]interface{}{
			"account_id":           req.ResourceID,
			"secondary_account_id": req.SecondaryResourceID,
		},
	}
}
