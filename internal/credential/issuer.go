// Package credential は講義ごとの出席トークンの発行を提供する。
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// TokenBytes は出席トークンの乱数バイト長（256bit）。
const TokenBytes = 32

// LectureFinder は講義の参照インターフェース。
type LectureFinder interface {
	FindByID(ctx context.Context, id string) (*model.Lecture, error)
}

// Issuer は出席トークンを発行する。
type Issuer struct {
	lectures    LectureFinder
	credentials repository.CredentialRepository
	maxValidity time.Duration
	now         func() time.Time
	random      io.Reader
}

// NewIssuer はIssuerを生成する。maxValidityは指定可能な有効期間の上限。
func NewIssuer(lectures LectureFinder, credentials repository.CredentialRepository, maxValidity time.Duration) *Issuer {
	return &Issuer{
		lectures:    lectures,
		credentials: credentials,
		maxValidity: maxValidity,
		now:         time.Now,
		random:      rand.Reader,
	}
}

// SetClock はテスト用に時刻関数を差し替える。
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue は講義に紐づく出席トークンを発行する。
// 有効期間は [IssuedAt, IssuedAt+validity) の半開区間で、validity=0 は即時失効のトークンになる。
// 同じ講義に複数回発行した場合、それぞれが独立して有効となる。
func (i *Issuer) Issue(ctx context.Context, lectureID string, issuer model.Identity, validity time.Duration) (*model.Credential, error) {
	if !issuer.IsLecturer() {
		return nil, model.NewRoleForbiddenError(model.RoleLecturer)
	}
	if validity < 0 || validity > i.maxValidity {
		return nil, model.NewInvalidValidityError(validity.Minutes(), i.maxValidity.Minutes())
	}

	lecture, err := i.lectures.FindByID(ctx, lectureID)
	if err != nil {
		return nil, storeError("講義の取得に失敗しました", err)
	}
	if lecture == nil {
		return nil, model.NewSessionNotFoundError(lectureID)
	}
	if lecture.OwnerID != issuer.ID {
		return nil, model.NewNotSessionOwnerError(lectureID)
	}

	token, err := i.generateToken()
	if err != nil {
		return nil, fmt.Errorf("出席トークンの生成に失敗しました: %w", err)
	}

	issuedAt := i.now()
	credential := &model.Credential{
		ID:        uuid.New().String(),
		Token:     token,
		LectureID: lecture.ID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(validity),
	}

	if err := i.credentials.Create(ctx, credential); err != nil {
		return nil, storeError("出席トークンの保存に失敗しました", err)
	}

	slog.Info("credential issued",
		slog.String("lecture_id", lecture.ID),
		slog.String("credential_id", credential.ID),
		slog.String("token_prefix", token[:8]),
		slog.Time("expires_at", credential.ExpiresAt),
	)

	return credential, nil
}

func (i *Issuer) generateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(i.random, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func storeError(msg string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		slog.Warn(msg, slog.String("error", err.Error()))
		return model.NewStoreUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
