package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/events"
	identitydomain "account-identity-core/internal/identity/domain"
	"account-identity-core/internal/limiter"
	"account-identity-core/internal/notification"
	"account-identity-core/internal/security"
	sessionservice "account-identity-core/internal/session/service"
	"account-identity-core/internal/verification"
)

type harness struct {
	repo     *repository.MemoryRepository
	mailer   *notification.MemoryMailer
	recorder *events.Recorder
	sessions *sessionservice.Issuer
	svc      *AuthService
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	repo := repository.NewMemoryRepository()
	mailer := &notification.MemoryMailer{}
	recorder := &events.Recorder{}
	log := zap.NewNop()
	sessions := sessionservice.NewIssuer(repo, security.NewTestTokenProvider(t), log)
	d := Deps{
		Accounts:               repo,
		Hasher:                 security.NewHasher(bcrypt.MinCost),
		Verifier:               verification.NewEngine(repo, mailer, 0, log),
		Sessions:               sessions,
		Exchange:               identitydomain.Registry{accountdomain.ProviderGoogle: identitydomain.DevExchange{}, accountdomain.ProviderKakao: identitydomain.DevExchange{}},
		Mailer:                 mailer,
		Emitter:                recorder,
		Log:                    log,
		AbortOnDeliveryFailure: true,
	}
	for _, o := range opts {
		o(&d)
	}
	return &harness{repo: repo, mailer: mailer, recorder: recorder, sessions: sessions, svc: NewAuthService(d)}
}

// registerVerified registers alice and confirms the emailed code.
func (h *harness) registerVerified(t *testing.T) *accountdomain.Account {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, "alice", "Alice@X.com", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, err := h.svc.VerifyEmail(ctx, "alice", h.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return a
}

func (h *harness) lastCode(t *testing.T) string {
	t.Helper()
	msg, ok := h.mailer.Last(notification.KindVerificationCode)
	if !ok {
		t.Fatal("no verification email")
	}
	return msg.Payload[notification.KeyCode]
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a, err := h.svc.Register(ctx, "alice", " Alice@X.com ", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Email != "alice@x.com" || a.Provider != accountdomain.ProviderEmail || a.IsVerified {
		t.Errorf("account = %+v", a)
	}
	if a.VerificationCode == "" || a.VerificationExpiry == nil {
		t.Error("registration should leave a pending code")
	}
	if a.ProfileImage != accountdomain.DefaultProfileImage() {
		t.Errorf("profile image = %+v", a.ProfileImage)
	}
	msg, ok := h.mailer.Last(notification.KindVerificationCode)
	if !ok || msg.To != "alice@x.com" || msg.Payload[notification.KeyCode] != a.VerificationCode {
		t.Errorf("verification email = %+v", msg)
	}
	for _, v := range msg.Payload {
		if v == "password1" {
			t.Fatal("password leaked into email payload")
		}
	}
	if !h.recorder.Has(events.TypeRegistered) {
		t.Error("registered event not emitted")
	}

	if _, err := h.svc.Register(ctx, "alice", "other@x.com", "password1"); !errors.Is(err, accountdomain.ErrDuplicateIdentity) {
		t.Errorf("duplicate user id: got %v", err)
	}
	if _, err := h.svc.Register(ctx, "alice2", "ALICE@x.com", "password1"); !errors.Is(err, accountdomain.ErrDuplicateIdentity) {
		t.Errorf("duplicate email: got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name                    string
		userID, email, password string
		want                    error
	}{
		{"bad email", "alice", "alice@x", "password1", accountdomain.ErrInvalidEmail},
		{"weak password", "alice", "alice@x.com", "password", accountdomain.ErrWeakPassword},
		{"bad user id", "a!", "alice@x.com", "password1", accountdomain.ErrInvalidUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Register(context.Background(), tt.userID, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if !errors.Is(err, accountdomain.ErrInvalidInput) {
				t.Errorf("%v should be an invalid input error", err)
			}
		})
	}
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, dup int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Register(context.Background(), "user"+string(rune('a'+i)), "same@x.com", "password1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, accountdomain.ErrDuplicateIdentity):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 || dup != 7 {
		t.Errorf("ok=%d dup=%d, want 1 and 7", ok, dup)
	}
}

func TestRegister_DeliveryFailure(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t)
	h.mailer.Fail = errors.New("smtp down")
	if _, err := h.svc.Register(ctx, "alice", "alice@x.com", "password1"); !errors.Is(err, accountdomain.ErrUpstreamDeliveryFailure) {
		t.Fatalf("abort mode: got %v", err)
	}
	if a, _ := h.repo.GetByUserID(ctx, "alice"); a != nil {
		t.Error("account should be removed when delivery fails in abort mode")
	}

	h = newHarness(t, func(d *Deps) { d.AbortOnDeliveryFailure = false })
	h.mailer.Fail = errors.New("smtp down")
	if _, err := h.svc.Register(ctx, "alice", "alice@x.com", "password1"); err != nil {
		t.Fatalf("log mode: %v", err)
	}
	if a, _ := h.repo.GetByUserID(ctx, "alice"); a == nil {
		t.Error("account should be kept in log-and-continue mode")
	}
}

func TestVerifyEmail_Scenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.registerVerified(t)
	if !a.IsVerified || a.VerificationCode != "" || a.VerificationExpiry != nil {
		t.Errorf("after verify: %+v", a)
	}
	if _, err := h.svc.VerifyEmail(ctx, "alice", "000000"); !errors.Is(err, accountdomain.ErrAlreadyVerified) {
		t.Errorf("second verify: got %v", err)
	}
	if _, err := h.svc.VerifyEmail(ctx, "nobody", "000000"); !errors.Is(err, accountdomain.ErrNotFound) {
		t.Errorf("unknown user: got %v", err)
	}
	if !h.recorder.Has(events.TypeVerified) {
		t.Error("verified event not emitted")
	}
}

func TestVerifyEmail_GuessingDiscardsCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.svc.Register(ctx, "alice", "alice@x.com", "password1"); err != nil {
		t.Fatal(err)
	}
	sent := h.lastCode(t)
	guessed := 0
	for n := 100000; guessed < 2000; n++ {
		guess := strconv.Itoa(n)
		if guess == sent {
			continue
		}
		if _, err := h.svc.VerifyEmail(ctx, "alice", guess); err == nil {
			t.Fatalf("guess %s accepted", guess)
		}
		guessed++
	}
	if _, err := h.svc.VerifyEmail(ctx, "alice", sent); !errors.Is(err, accountdomain.ErrInvalidCode) {
		t.Fatalf("sent code after guessing: got %v, want ErrInvalidCode", err)
	}
	a, _ := h.repo.GetByUserID(ctx, "alice")
	if a.IsVerified {
		t.Fatal("account verified by guessing")
	}

	if err := h.svc.ResendVerification(ctx, "alice"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if _, err := h.svc.VerifyEmail(ctx, "alice", h.lastCode(t)); err != nil {
		t.Errorf("verify with reissued code: %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *Deps) { d.Limiter = limiter.NewMemoryLimiter(2, time.Hour) })
	if _, err := h.svc.Register(ctx, "alice", "alice@x.com", "password1"); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.ResendVerification(ctx, "alice"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	second := h.lastCode(t)
	if _, err := h.svc.VerifyEmail(ctx, "alice", second); err != nil {
		t.Fatalf("verify with resent code: %v", err)
	}
	if err := h.svc.ResendVerification(ctx, "alice"); !errors.Is(err, accountdomain.ErrAlreadyVerified) {
		t.Errorf("resend after verify: got %v", err)
	}
	if err := h.svc.ResendVerification(ctx, "alice"); !errors.Is(err, accountdomain.ErrRateLimited) {
		t.Errorf("third resend: got %v, want ErrRateLimited", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t)

	res, err := h.svc.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens.AccessToken == "" || !res.OnboardingRequired {
		t.Errorf("result = %+v", res)
	}
	if _, err := h.sessions.Authenticate(ctx, res.Tokens.AccessToken); err != nil {
		t.Errorf("issued access token does not authenticate: %v", err)
	}

	if _, err := h.svc.Login(ctx, "nobody", "password1"); !errors.Is(err, accountdomain.ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", err)
	} else if _, ok := accountdomain.RemainingAttempts(err); ok {
		t.Error("unknown user must not report remaining attempts")
	}
}

func TestLogin_Unverified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.svc.Register(ctx, "alice", "alice@x.com", "password1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Login(ctx, "alice", "password1"); !errors.Is(err, accountdomain.ErrNotVerified) {
		t.Errorf("got %v, want ErrNotVerified", err)
	}
}

func TestLogin_LockoutScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t)

	for i := 1; i <= accountdomain.LockThreshold; i++ {
		_, err := h.svc.Login(ctx, "alice", "wrongpass1")
		n, ok := accountdomain.RemainingAttempts(err)
		if !ok {
			t.Fatalf("attempt %d: got %v, want CredentialsError", i, err)
		}
		if want := accountdomain.LockThreshold - i; n != want {
			t.Errorf("attempt %d: remaining = %d, want %d", i, n, want)
		}
	}
	if _, err := h.svc.Login(ctx, "alice", "password1"); !errors.Is(err, accountdomain.ErrAccountLocked) {
		t.Errorf("11th attempt with correct password: got %v, want ErrAccountLocked", err)
	}
	a, _ := h.repo.GetByUserID(ctx, "alice")
	if a.FailedAttempts != accountdomain.LockThreshold || !a.IsLocked {
		t.Errorf("attempts=%d locked=%v", a.FailedAttempts, a.IsLocked)
	}
	if !h.recorder.Has(events.TypeLocked) {
		t.Error("locked event not emitted")
	}
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t)
	for i := 0; i < 3; i++ {
		_, _ = h.svc.Login(ctx, "alice", "wrongpass1")
	}
	res, err := h.svc.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Account.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d, want 0", res.Account.FailedAttempts)
	}
}

func TestLoginWithProvider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.svc.LoginWithProvider(ctx, "google", "g-123|bob@x.com")
	if err != nil {
		t.Fatalf("LoginWithProvider: %v", err)
	}
	if !res.Created || !res.OnboardingRequired || res.Tokens == nil {
		t.Errorf("result = %+v", res)
	}
	if res.Account.UserID != "google_g-123" || !res.Account.IsVerified || res.Account.SnsID != "google:g-123" {
		t.Errorf("account = %+v", res.Account)
	}

	again, err := h.svc.LoginWithProvider(ctx, "google", "g-123|bob@x.com")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if again.Created || again.Account.ID != res.Account.ID {
		t.Error("second login should bind to the existing account")
	}

	if _, err := h.svc.LoginWithProvider(ctx, "email", "x"); !errors.Is(err, accountdomain.ErrInvalidProvider) {
		t.Errorf("email provider: got %v", err)
	}
	if _, err := h.svc.LoginWithProvider(ctx, "naver", "x"); !errors.Is(err, identitydomain.ErrProviderNotConfigured) {
		t.Errorf("unconfigured provider: got %v", err)
	}
	if _, err := h.svc.LoginWithProvider(ctx, "google", ""); !errors.Is(err, accountdomain.ErrInvalidCredentials) {
		t.Errorf("rejected code: got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.registerVerified(t)
	res, err := h.svc.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatal(err)
	}

	if err := h.svc.DeleteAccount(ctx, a.ID, "wrongpass1"); !errors.Is(err, accountdomain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if err := h.svc.DeleteAccount(ctx, a.ID, "password1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if got, _ := h.repo.GetByID(ctx, a.ID); got != nil {
		t.Error("account still present")
	}
	if _, ok := h.mailer.Last(notification.KindAccountDeleted); !ok {
		t.Error("deletion email not sent")
	}
	if _, err := h.sessions.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, accountdomain.ErrInvalidOrExpiredToken) {
		t.Errorf("token of deleted account: got %v", err)
	}
	if err := h.svc.DeleteAccount(ctx, a.ID, "password1"); !errors.Is(err, accountdomain.ErrNotFound) {
		t.Errorf("second delete: got %v", err)
	}
}

func TestDeleteAccount_ProviderAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res, err := h.svc.LoginWithProvider(ctx, "kakao", "k-9")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.DeleteAccount(ctx, res.Account.ID, ""); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if !h.recorder.Has(events.TypeDeleted) {
		t.Error("deleted event not emitted")
	}
}
