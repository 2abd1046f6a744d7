package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/rollcall/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した出席トークンリポジトリ。
type PostgresCredentialRepo struct {
	db DBTX
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db DBTX) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// Create は出席トークンを保存する。
// tokenの一意制約により、万一の衝突時はErrDuplicateを返す。
func (r *PostgresCredentialRepo) Create(ctx context.Context, credential *model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO qr_codes (id, lecture_id, token, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		credential.ID, credential.LectureID, credential.Token, credential.IssuedAt, credential.ExpiresAt,
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("credential token collision: %w", ErrDuplicate)
	}
	if err != nil {
		return wrapErr("failed to insert credential", err)
	}
	return nil
}

// PostgresTransactor は出席登録をPostgreSQLの1トランザクションとして実行する。
type PostgresTransactor struct {
	db TxBeginner
}

// NewPostgresTransactor はPostgresTransactorを生成する。
func NewPostgresTransactor(db TxBeginner) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

// WithinTx はトランザクションを開始し、fnが成功すればコミット、失敗すればロールバックする。
// ctxがキャンセルされた場合もロールバックされ、途中までの書き込みは残らない。
func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx RedemptionTx) error) (err error) {
	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		if commitErr := sqlTx.Commit(); commitErr != nil {
			err = wrapErr("failed to commit transaction", commitErr)
		}
	}()

	return fn(ctx, &postgresRedemptionTx{q: sqlTx})
}

// postgresRedemptionTx はトランザクション内のストア操作。
type postgresRedemptionTx struct {
	q DBTX
}

func (tx *postgresRedemptionTx) FindCredentialByToken(ctx context.Context, token string) (*model.Credential, error) {
	if !validText(token) {
		return nil, nil
	}
	c := &model.Credential{}
	err := tx.q.QueryRowContext(ctx,
		`SELECT id, lecture_id, token, issued_at, expires_at FROM qr_codes WHERE token = $1`,
		token,
	).Scan(&c.ID, &c.LectureID, &c.Token, &c.IssuedAt, &c.ExpiresAt)

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find credential", err)
	}
	return c, nil
}

func (tx *postgresRedemptionTx) FindLecture(ctx context.Context, lectureID string) (*model.Lecture, error) {
	return findLecture(ctx, tx.q, lectureID)
}

func (tx *postgresRedemptionTx) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := tx.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)`,
		studentID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("failed to check enrollment", err)
	}
	return exists, nil
}

// InsertRedemption は出席記録を挿入する。
// attendance_student_lecture_key の一意制約違反をそのまま二重出席の合図とし、
// 事前の存在確認は行わない。
func (tx *postgresRedemptionTx) InsertRedemption(ctx context.Context, r *model.Redemption) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO attendance (id, student_id, lecture_id, qr_id, redeemed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.StudentID, r.LectureID, r.CredentialID, r.RedeemedAt,
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("attendance %s/%s: %w", r.StudentID, r.LectureID, ErrDuplicate)
	}
	if err != nil {
		return wrapErr("failed to insert attendance", err)
	}
	return nil
}

// compile-time interface check
var (
	_ CredentialRepository = (*PostgresCredentialRepo)(nil)
	_ Transactor           = (*PostgresTransactor)(nil)
	_ RedemptionTx         = (*postgresRedemptionTx)(nil)
)
