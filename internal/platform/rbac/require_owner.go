// Package rbac holds the per-RPC ownership checks shared by the gRPC handlers.
package rbac

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"account-identity-core/internal/policy/engine"
	"account-identity-core/internal/server/interceptors"
)

// Authorizer evaluates an ownership request. *engine.OPAEvaluator implements it.
type Authorizer interface {
	Authorize(ctx context.Context, req engine.Request) error
}

// RequireOwner ensures the caller is authenticated and owns resourceID for action.
// An empty resourceID means the caller's own account. Returns the caller's account id on success;
// returns a gRPC error (Unauthenticated or PermissionDenied) on failure.
func RequireOwner(ctx context.Context, authz Authorizer, action, resourceID string) (string, error) {
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok || accountID == "" {
		return "", status.Error(codes.Unauthenticated, "account context required")
	}
	if resourceID == "" {
		resourceID = accountID
	}
	if err := authorize(ctx, authz, engine.Request{Action: action, PrincipalID: accountID, ResourceID: resourceID}); err != nil {
		return "", err
	}
	return accountID, nil
}

// RequireLinkOwner ensures the caller owns primaryID and that secondaryPrincipalID, resolved from a
// second access token, owns secondaryID.
func RequireLinkOwner(ctx context.Context, authz Authorizer, primaryID, secondaryID, secondaryPrincipalID string) error {
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok || accountID == "" {
		return status.Error(codes.Unauthenticated, "account context required")
	}
	return authorize(ctx, authz, engine.Request{
		Action:               "link",
		PrincipalID:          accountID,
		ResourceID:           primaryID,
		SecondaryPrincipalID: secondaryPrincipalID,
		SecondaryResourceID:  secondaryID,
	})
}

func authorize(ctx context.Context, authz Authorizer, req engine.Request) error {
	if authz == nil {
		if req.PrincipalID == req.ResourceID && (req.Action != "link" || req.SecondaryPrincipalID == req.SecondaryResourceID) {
			return nil
		}
		return status.Error(codes.PermissionDenied, "not the owner of this account")
	}
	if err := authz.Authorize(ctx, req); err != nil {
		if errors.Is(err, engine.ErrDenied) {
			return status.Error(codes.PermissionDenied, "not the owner of this account")
		}
		return status.Error(codes.Internal, "failed to evaluate policy")
	}
	return nil
}
