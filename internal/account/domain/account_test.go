package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"google", ProviderGoogle, false},
		{" Kakao ", ProviderKakao, false},
		{"NAVER", ProviderNaver, false},
		{"email", ProviderEmail, false},
		{"github", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProvider(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProvider_External(t *testing.T) {
	if ProviderEmail.External() || ProviderCombined.External() {
		t.Error("email and combined are not external providers")
	}
	if !ProviderGoogle.External() {
		t.Error("google should be external")
	}
}

func TestAccount_RemainingAttempts(t *testing.T) {
	a := &Account{FailedAttempts: 3}
	if got := a.RemainingAttempts(); got != 7 {
		t.Errorf("RemainingAttempts = %d, want 7", got)
	}
	a.FailedAttempts = 12
	if got := a.RemainingAttempts(); got != 0 {
		t.Errorf("RemainingAttempts = %d, want 0", got)
	}
}

func TestAccount_Validate(t *testing.T) {
	exp := time.Now().Add(time.Minute)
	base := func() *Account {
		return &Account{ID: "id-1", UserID: "alice", Email: "alice@x.com", Provider: ProviderEmail}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid account: %v", err)
	}

	a := base()
	a.IsVerified = true
	a.VerificationCode = "123456"
	a.VerificationExpiry = &exp
	if err := a.Validate(); err == nil {
		t.Error("verified account with code should fail validation")
	}

	a = base()
	a.IsLocked = true
	a.FailedAttempts = 9
	if err := a.Validate(); err == nil {
		t.Error("locked below threshold should fail validation")
	}

	a = base()
	a.Provider = ProviderGoogle
	if err := a.Validate(); err == nil {
		t.Error("provider account without sns id should fail validation")
	}
}

func TestAccount_CloneIsDeep(t *testing.T) {
	exp := time.Now()
	a := &Account{ID: "1", StylePreferences: []StylePreference{StyleMinimal}, VerificationExpiry: &exp}
	c := a.Clone()
	c.StylePreferences[0] = StyleGrunge
	*c.VerificationExpiry = exp.Add(time.Hour)
	if a.StylePreferences[0] != StyleMinimal {
		t.Error("clone shares style slice")
	}
	if !a.VerificationExpiry.Equal(exp) {
		t.Error("clone shares expiry pointer")
	}
}

func TestValidateStyles(t *testing.T) {
	if err := ValidateStyles([]StylePreference{StyleMinimal, StyleStreet, StyleLuxury}); err != nil {
		t.Errorf("three valid styles: %v", err)
	}
	if err := ValidateStyles([]StylePreference{StyleMinimal, StyleStreet, StyleLuxury, StyleModern}); !errors.Is(err, ErrTooManyStyles) {
		t.Errorf("four styles: got %v, want ErrTooManyStyles", err)
	}
	if err := ValidateStyles([]StylePreference{"disco"}); !errors.Is(err, ErrInvalidStyle) {
		t.Errorf("unknown style: got %v", err)
	}
	if err := ValidateStyles([]StylePreference{StyleMinimal, StyleMinimal}); !errors.Is(err, ErrInvalidStyle) {
		t.Errorf("duplicate style: got %v", err)
	}
}

func TestValidationErrorsMatchInvalidInput(t *testing.T) {
	for _, err := range []error{ErrInvalidEmail, ErrWeakPassword, ErrInvalidSize, ErrImageTooLarge} {
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%v should match ErrInvalidInput", err)
		}
		if !IsClientError(err) {
			t.Errorf("%v should be a client error", err)
		}
	}
}

func TestCredentialsError(t *testing.T) {
	var err error = &CredentialsError{RemainingAttempts: 4}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Error("CredentialsError should unwrap to ErrInvalidCredentials")
	}
	n, ok := RemainingAttempts(err)
	if !ok || n != 4 {
		t.Errorf("RemainingAttempts = %d, %v", n, ok)
	}
	if _, ok := RemainingAttempts(ErrInvalidCredentials); ok {
		t.Error("plain sentinel should not carry remaining attempts")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrConflict) {
		t.Error("conflict should be retryable")
	}
	if IsRetryable(ErrInvalidCode) {
		t.Error("invalid code should not be retryable")
	}
	if IsClientError(errors.New("db down")) {
		t.Error("unknown errors are not client errors")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		pw string
		ok bool
	}{
		{"abcdefg1", true},
		{"short1", false},
		{"nodigitshere", false},
		{"12345678", false},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.pw)
		if (err == nil) != tt.ok {
			t.Errorf("ValidatePassword(%q) = %v, want ok=%v", tt.pw, err, tt.ok)
		}
	}
}

func TestValidateUserIDAndEmail(t *testing.T) {
	if err := ValidateUserID("alice"); err != nil {
		t.Errorf("alice: %v", err)
	}
	if err := ValidateUserID("a b"); err == nil {
		t.Error("space in user id should be rejected")
	}
	if err := ValidateEmail("alice@x.com"); err != nil {
		t.Errorf("alice@x.com: %v", err)
	}
	if err := ValidateEmail("alice@x"); err == nil {
		t.Error("missing tld should be rejected")
	}
}

func TestAccount_SummaryOmitsSecrets(t *testing.T) {
	a := &Account{ID: "1", UserID: "alice", PasswordHash: "h", AccessTokenHash: "x", StylePreferences: []StylePreference{StyleMinimal}}
	s := a.Summary()
	if s.AccountID != "1" || s.UserID != "alice" {
		t.Errorf("Summary = %+v", s)
	}
	s.StylePreferences[0] = StyleGrunge
	if a.StylePreferences[0] != StyleMinimal {
		t.Error("summary shares style slice")
	}
	var nilAcc *Account
	if nilAcc.Summary() != nil {
		t.Error("nil account summary should be nil")
	}
}
