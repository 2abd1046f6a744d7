// Package attendance は出席トークンの引き換え（出席登録）を提供する。
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
)

// Validator は提示された出席トークンを検証し、出席記録を原子的に登録する。
type Validator struct {
	tx  repository.Transactor
	now func() time.Time
}

// NewValidator はValidatorを生成する。
func NewValidator(tx repository.Transactor) *Validator {
	return &Validator{tx: tx, now: time.Now}
}

// SetClock はテスト用に時刻関数を差し替える。
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Redeem は学生の出席を登録する。
// 検証順: トークンの存在と有効期間 → 履修登録 → 重複。すべて1つのトランザクション内で行い、
// 失敗した場合は出席記録を残さない。
func (v *Validator) Redeem(ctx context.Context, token string, subject model.Identity) (*model.Redemption, error) {
	if !subject.IsStudent() {
		return nil, model.NewRoleForbiddenError(model.RoleStudent)
	}
	if token == "" {
		return nil, model.NewCredentialInvalidError()
	}

	var redemption *model.Redemption
	err := v.tx.WithinTx(ctx, func(ctx context.Context, tx repository.RedemptionTx) error {
		at := v.now()

		credential, err := tx.FindCredentialByToken(ctx, token)
		if err != nil {
			return err
		}
		if credential == nil || !credential.ValidAt(at) {
			return model.NewCredentialInvalidError()
		}

		lecture, err := tx.FindLecture(ctx, credential.LectureID)
		if err != nil {
			return err
		}
		if lecture == nil {
			// 講義削除とトークンはCASCADEで同時に消えるため通常は起こらない
			return model.NewCredentialInvalidError()
		}

		enrolled, err := tx.IsEnrolled(ctx, subject.ID, lecture.CourseID)
		if err != nil {
			return err
		}
		if !enrolled {
			return model.NewEnrollmentMissingError()
		}

		r := &model.Redemption{
			ID:           uuid.New().String(),
			StudentID:    subject.ID,
			LectureID:    lecture.ID,
			CredentialID: credential.ID,
			RedeemedAt:   at,
		}
		if err := tx.InsertRedemption(ctx, r); err != nil {
			return err
		}
		redemption = r
		return nil
	})

	var apiErr *model.APIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr):
		return nil, apiErr
	case errors.Is(err, repository.ErrDuplicate):
		return nil, model.NewDuplicateRedemptionError()
	case errors.Is(err, repository.ErrUnavailable):
		slog.Warn("出席登録中にストアが利用できません", slog.String("error", err.Error()))
		return nil, model.NewStoreUnavailableError()
	default:
		return nil, fmt.Errorf("出席登録に失敗しました: %w", err)
	}

	slog.Info("attendance recorded",
		slog.String("student_id", redemption.StudentID),
		slog.String("lecture_id", redemption.LectureID),
		slog.String("credential_id", redemption.CredentialID),
	)
	return redemption, nil
}
