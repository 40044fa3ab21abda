package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "acc-1", "alice")

	accountID, ok := GetAccountID(ctx)
	if !ok || accountID != "acc-1" {
		t.Errorf("GetAccountID = %q, %v; want acc-1, true", accountID, ok)
	}
	userID, ok := GetUserID(ctx)
	if !ok || userID != "alice" {
		t.Errorf("GetUserID = %q, %v; want alice, true", userID, ok)
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if v, ok := GetAccountID(ctx); ok || v != "" {
		t.Errorf("GetAccountID = %q, %v; want \"\", false", v, ok)
	}
	if v, ok := GetUserID(ctx); ok || v != "" {
		t.Errorf("GetUserID = %q, %v; want \"\", false", v, ok)
	}
}

func TestWithIdentity_Overrides(t *testing.T) {
	ctx := WithIdentity(context.Background(), "acc-1", "alice")
	ctx = WithIdentity(ctx, "acc-2", "bob")
	if v, _ := GetAccountID(ctx); v != "acc-2" {
		t.Errorf("GetAccountID = %q, want acc-2", v)
	}
}
