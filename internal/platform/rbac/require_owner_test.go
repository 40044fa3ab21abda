package rbac

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"account-identity-core/internal/policy/engine"
	"account-identity-core/internal/server/interceptors"
)

// mockAuthorizer records the last request and returns err.
type mockAuthorizer struct {
	last engine.Request
	err  error
}

func (m *mockAuthorizer) Authorize(ctx context.Context, req engine.Request) error {
	m.last = req
	return m.err
}

func TestRequireOwner(t *testing.T) {
	authed := interceptors.WithIdentity(context.Background(), "acc-1", "alice")
	opa, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tests := []struct {
		name     string
		ctx      context.Context
		authz    Authorizer
		resource string
		wantCode codes.Code
	}{
		{"unauthenticated", context.Background(), opa, "acc-1", codes.Unauthenticated},
		{"own account", authed, opa, "acc-1", codes.OK},
		{"implicit own account", authed, opa, "", codes.OK},
		{"other account", authed, opa, "acc-2", codes.PermissionDenied},
		{"nil authorizer owner", authed, nil, "acc-1", codes.OK},
		{"nil authorizer other", authed, nil, "acc-2", codes.PermissionDenied},
		{"evaluator failure", authed, &mockAuthorizer{err: errors.New("boom")}, "acc-1", codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := RequireOwner(tt.ctx, tt.authz, "delete", tt.resource)
			if got := status.Code(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", got, tt.wantCode, err)
			}
			if err == nil && id != "acc-1" {
				t.Errorf("account id = %q, want acc-1", id)
			}
		})
	}
}

func TestRequireOwner_PassesRequest(t *testing.T) {
	m := &mockAuthorizer{}
	ctx := interceptors.WithIdentity(context.Background(), "acc-1", "alice")
	if _, err := RequireOwner(ctx, m, "update_preferences", ""); err != nil {
		t.Fatalf("RequireOwner: %v", err)
	}
	want := engine.Request{Action: "update_preferences", PrincipalID: "acc-1", ResourceID: "acc-1"}
	if m.last != want {
		t.Errorf("request = %+v, want %+v", m.last, want)
	}
}

func TestRequireLinkOwner(t *testing.T) {
	opa, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	ctx := interceptors.WithIdentity(context.Background(), "acc-1", "alice")
	if err := RequireLinkOwner(ctx, opa, "acc-1", "acc-2", "acc-2"); err != nil {
		t.Errorf("both owners: %v", err)
	}
	if err := RequireLinkOwner(ctx, opa, "acc-1", "acc-2", ""); status.Code(err) != codes.PermissionDenied {
		t.Errorf("missing secondary proof: %v", err)
	}
	if err := RequireLinkOwner(ctx, opa, "acc-3", "acc-2", "acc-2"); status.Code(err) != codes.PermissionDenied {
		t.Errorf("foreign primary: %v", err)
	}
	if err := RequireLinkOwner(context.Background(), opa, "acc-1", "acc-2", "acc-2"); status.Code(err) != codes.Unauthenticated {
		t.Errorf("unauthenticated: %v", err)
	}
}
