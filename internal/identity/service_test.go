package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// --- モック ---

type mockIdentityRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.Identity, error)
	findByUniversityIDFn func(ctx context.Context, universityID string) (*model.Identity, error)
	createFn             func(ctx context.Context, identity *model.Identity) error
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockIdentityRepo) FindByUniversityID(ctx context.Context, universityID string) (*model.Identity, error) {
	return m.findByUniversityIDFn(ctx, universityID)
}
func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return m.createFn(ctx, identity)
}

type recordingFailures struct {
	reasons []string
}

func (r *recordingFailures) RecordAuthFailure(reason string) {
	r.reasons = append(r.reasons, reason)
}

// --- ヘルパー ---

func newTestService(t *testing.T, repo repository.IdentityRepository) (*Service, *recordingFailures, *time.Time) {
	t.Helper()
	signer, err := NewSigner(testSecret, "rollcall", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	hasher := security.NewPasswordHasher(security.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	rec := &recordingFailures{}
	svc, err := NewService(repo, hasher, signer, rec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	return svc, rec, &now
}

func registerStudent(t *testing.T, svc *Service) *model.Identity {
	t.Helper()
	id, err := svc.Register(context.Background(), RegisterInput{
		UniversityID: "S2026001",
		Password:     "student-password",
		Name:         "山田花子",
		Role:         model.RoleStudent,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return id
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

// --- テスト ---

func TestService_AuthenticateAndVerify(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())
	registered := registerStudent(t, svc)

	signed, err := svc.Authenticate(context.Background(), "S2026001", "student-password")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if signed.Identity.ID != registered.ID {
		t.Errorf("identity id = %s, want %s", signed.Identity.ID, registered.ID)
	}
	if want := time.Date(2026, 4, 11, 9, 0, 0, 0, time.UTC); !signed.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", signed.ExpiresAt, want)
	}

	verified, err := svc.Verify(context.Background(), signed.Assertion)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.ID != registered.ID || verified.Role != model.RoleStudent {
		t.Errorf("verified = %+v", verified)
	}
}

// 未登録と不一致が同じエラーになることを検証
func TestService_Authenticate_FailuresAreIndistinguishable(t *testing.T) {
	svc, rec, _ := newTestService(t, repository.NewMemoryStore().Identities())
	registerStudent(t, svc)

	_, errWrong := svc.Authenticate(context.Background(), "S2026001", "wrong-password")
	_, errUnknown := svc.Authenticate(context.Background(), "S9999999", "student-password")

	assertAPIErrorCode(t, errWrong, model.ErrCodeInvalidCredentials)
	assertAPIErrorCode(t, errUnknown, model.ErrCodeInvalidCredentials)
	if errWrong.Error() != errUnknown.Error() {
		t.Errorf("messages differ: %q vs %q", errWrong, errUnknown)
	}
	if len(rec.reasons) != 2 {
		t.Errorf("recorded failures = %v, want 2", rec.reasons)
	}
}

func TestService_Authenticate_MissingFields(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())
	_, err := svc.Authenticate(context.Background(), "", "x")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}

func TestService_Authenticate_StoreUnavailable(t *testing.T) {
	repo := &mockIdentityRepo{
		findByUniversityIDFn: func(ctx context.Context, universityID string) (*model.Identity, error) {
			return nil, fmt.Errorf("failed to find identity: %w", repository.ErrUnavailable)
		},
	}
	svc, _, _ := newTestService(t, repo)

	_, err := svc.Authenticate(context.Background(), "S1", "password-1")
	assertAPIErrorCode(t, err, model.ErrCodeStoreUnavailable)
	var apiErr *model.APIError
	errors.As(err, &apiErr)
	if !apiErr.Retryable {
		t.Error("store unavailable should be retryable")
	}
}

func TestService_Verify_Expired(t *testing.T) {
	svc, _, now := newTestService(t, repository.NewMemoryStore().Identities())
	registerStudent(t, svc)
	signed, err := svc.Authenticate(context.Background(), "S2026001", "student-password")
	if err != nil {
		t.Fatal(err)
	}

	later := now.Add(24*time.Hour + time.Second)
	svc.SetClock(func() time.Time { return later })

	_, err = svc.Verify(context.Background(), signed.Assertion)
	assertAPIErrorCode(t, err, model.ErrCodeAssertionExpired)
}

func TestService_Verify_Malformed(t *testing.T) {
	svc, _, now := newTestService(t, repository.NewMemoryStore().Identities())
	id := registerStudent(t, svc)

	otherSigner, _ := NewSigner([]byte("ffffffffffffffffffffffffffffffff"), "rollcall", time.Hour)
	forged, _, _ := otherSigner.Sign(id, *now)

	noneToken := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             string(model.RoleLecturer),
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.ID, Issuer: "rollcall", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	})
	unsigned, _ := noneToken.SignedString(jwt.UnsafeAllowNoneSignatureType)

	wrongIssuer, _ := NewSigner(testSecret, "someone-else", time.Hour)
	otherIss, _, _ := wrongIssuer.Sign(id, *now)

	tests := []struct {
		name      string
		assertion string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong key", forged},
		{"alg none", unsigned},
		{"wrong issuer", otherIss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(context.Background(), tt.assertion)
			assertAPIErrorCode(t, err, model.ErrCodeAssertionMalformed)
		})
	}
}

func TestService_Verify_Empty(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())
	_, err := svc.Verify(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

// ストアから消えた利用者、ロールが変わった利用者のトークンは拒否される
func TestService_Verify_IdentityUnknown(t *testing.T) {
	var stored *model.Identity
	repo := &mockIdentityRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Identity, error) {
			return stored, nil
		},
	}
	svc, _, now := newTestService(t, repo)
	id := &model.Identity{ID: "u-1", UniversityID: "S1", Role: model.RoleStudent}
	assertion, _, err := svc.signer.Sign(id, *now)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Verify(context.Background(), assertion)
	assertAPIErrorCode(t, err, model.ErrCodeIdentityUnknown)

	stored = &model.Identity{ID: "u-1", UniversityID: "S1", Role: model.RoleLecturer}
	_, err = svc.Verify(context.Background(), assertion)
	assertAPIErrorCode(t, err, model.ErrCodeIdentityUnknown)
}

func TestService_Register_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{UniversityID: "S1", Password: "password-1", Role: model.RoleStudent}},
		{"markup-only name", RegisterInput{UniversityID: "S1", Password: "password-1", Name: "<script>x</script>", Role: model.RoleStudent}},
		{"bad role", RegisterInput{UniversityID: "S1", Password: "password-1", Name: "n", Role: "admin"}},
		{"short password", RegisterInput{UniversityID: "S1", Password: "short", Name: "n", Role: model.RoleStudent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
		})
	}
}

func TestService_Register_Duplicate(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())
	registerStudent(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{
		UniversityID: "S2026001", Password: "another-password", Name: "別人", Role: model.RoleStudent,
	})
	assertAPIErrorCode(t, err, model.ErrCodeIdentityExists)
}

func TestService_Register_StoresHashNotPassword(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())
	id := registerStudent(t, svc)
	if !strings.HasPrefix(id.PasswordHash, "$argon2id$") {
		t.Errorf("password hash = %q, want argon2id PHC string", id.PasswordHash)
	}
}

func TestService_Register_StripsMarkupFromName(t *testing.T) {
	svc, _, _ := newTestService(t, repository.NewMemoryStore().Identities())
	id, err := svc.Register(context.Background(), RegisterInput{
		UniversityID: "S2026100", Password: "password-1", Name: " <b>佐藤</b> 花子 ", Role: model.RoleStudent,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id.Name != "佐藤 花子" {
		t.Errorf("Name = %q, want %q", id.Name, "佐藤 花子")
	}
}

func TestNewSigner_RejectsShortSecret(t *testing.T) {
	if _, err := NewSigner([]byte("short"), "rollcall", time.Hour); err == nil {
		t.Error("expected error for short secret")
	}
}
