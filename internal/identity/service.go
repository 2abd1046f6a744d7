// Package identity は利用者の認証（パスワードログイン）と認証トークンの検証を提供する。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// FailureRecorder は認証失敗の記録先。
type FailureRecorder interface {
	RecordAuthFailure(reason string)
}

// SignedIdentity はログイン成功時に返す認証トークンと利用者。
type SignedIdentity struct {
	Assertion string
	ExpiresAt time.Time
	Identity  *model.Identity
}

// RegisterInput は利用者登録の入力。
type RegisterInput struct {
	UniversityID string
	Password     string
	Name         string
	Role         model.Role
}

// Service は認証ゲートウェイ。サーバー側にセッション状態を持たない。
type Service struct {
	repo     repository.IdentityRepository
	hasher   PasswordHasher
	signer   *Signer
	recorder FailureRecorder
	now      func() time.Time

	// dummyHash は未登録の学籍番号でも照合コストを揃えるためのハッシュ。
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(repo repository.IdentityRepository, hasher PasswordHasher, signer *Signer, recorder FailureRecorder) (*Service, error) {
	dummy, err := hasher.Hash("rollcall-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Service{
		repo:      repo,
		hasher:    hasher,
		signer:    signer,
		recorder:  recorder,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// SetClock はテスト用に時刻関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Authenticate は学籍番号とパスワードで利用者を認証し、署名済みトークンを発行する。
// 未登録とパスワード不一致は同じINVALID_CREDENTIALSで失敗する。
func (s *Service) Authenticate(ctx context.Context, universityID, password string) (*SignedIdentity, error) {
	if universityID == "" || password == "" {
		return nil, model.NewInvalidRequestError("学籍番号とパスワードは必須です。")
	}

	identity, err := s.repo.FindByUniversityID(ctx, universityID)
	if err != nil {
		return nil, storeError("利用者の取得に失敗しました", err)
	}

	encoded := s.dummyHash
	if identity != nil {
		encoded = identity.PasswordHash
	}
	ok, err := s.hasher.Verify(password, encoded)
	if err != nil {
		slog.Error("パスワードハッシュの照合に失敗しました",
			slog.String("university_id", universityID),
			slog.String("error", err.Error()),
		)
		ok = false
	}
	if identity == nil || !ok {
		s.fail(model.ErrCodeInvalidCredentials)
		slog.Info("login failed", slog.String("university_id", universityID))
		return nil, model.NewInvalidCredentialsError()
	}

	assertion, expiresAt, err := s.signer.Sign(identity, s.now())
	if err != nil {
		return nil, fmt.Errorf("認証トークンの発行に失敗しました: %w", err)
	}

	slog.Info("login succeeded",
		slog.String("user_id", identity.ID),
		slog.String("role", string(identity.Role)),
	)

	return &SignedIdentity{Assertion: assertion, ExpiresAt: expiresAt, Identity: identity}, nil
}

// Verify は認証トークンを検証し、ストアから再解決した利用者を返す。
// 削除済みの利用者やロールが変わった利用者のトークンは受け付けない。
func (s *Service) Verify(ctx context.Context, assertion string) (*model.Identity, error) {
	if assertion == "" {
		s.fail(model.ErrCodeUnauthorized)
		return nil, model.NewUnauthorizedError()
	}

	claims, err := s.signer.Parse(assertion, s.now())
	if errors.Is(err, errAssertionExpired) {
		s.fail(model.ErrCodeAssertionExpired)
		return nil, model.NewAssertionExpiredError()
	}
	if err != nil {
		s.fail(model.ErrCodeAssertionMalformed)
		slog.Debug("assertion rejected", slog.String("error", err.Error()))
		return nil, model.NewAssertionMalformedError()
	}

	identity, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, storeError("利用者の取得に失敗しました", err)
	}
	if identity == nil || string(identity.Role) != claims.Role {
		s.fail(model.ErrCodeIdentityUnknown)
		return nil, model.NewIdentityUnknownError()
	}

	return identity, nil
}

// Register は利用者を登録する。パスワードはハッシュ化して保存する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Identity, error) {
	in.UniversityID = strings.TrimSpace(in.UniversityID)
	in.Name = security.SanitizeText(in.Name)

	if in.UniversityID == "" || in.Name == "" || in.Password == "" {
		return nil, model.NewInvalidRequestError("学籍番号、氏名、パスワードは必須です。")
	}
	if !in.Role.Valid() {
		return nil, model.NewInvalidRequestError("ロールは lecturer または student を指定してください。")
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", security.MinPasswordLength))
	}
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	identity := &model.Identity{
		ID:           uuid.New().String(),
		UniversityID: in.UniversityID,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	err = s.repo.Create(ctx, identity)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, model.NewIdentityExistsError()
	}
	if err != nil {
		return nil, storeError("利用者の登録に失敗しました", err)
	}

	slog.Info("identity registered",
		slog.String("user_id", identity.ID),
		slog.String("role", string(identity.Role)),
	)
	return identity, nil
}

func (s *Service) fail(reason string) {
	if s.recorder != nil {
		s.recorder.RecordAuthFailure(reason)
	}
}

// storeError はストアの一時障害をSTORE_UNAVAILABLEに変換し、それ以外は文脈を付けて返す。
func storeError(msg string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		slog.Warn(msg, slog.String("error", err.Error()))
		return model.NewStoreUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
