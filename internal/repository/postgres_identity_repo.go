package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/rollcall/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用した利用者リポジトリ。
type PostgresIdentityRepo struct {
	db DBTX
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db DBTX) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx,
		`SELECT id, university_id, name, role, password_hash, created_at FROM users WHERE id = $1`,
		id,
	)
}

// FindByUniversityID は学籍番号で利用者を取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByUniversityID(ctx context.Context, universityID string) (*model.Identity, error) {
	if !validText(universityID) {
		return nil, nil
	}
	return r.findOne(ctx,
		`SELECT id, university_id, name, role, password_hash, created_at FROM users WHERE university_id = $1`,
		universityID,
	)
}

func (r *PostgresIdentityRepo) findOne(ctx context.Context, query string, arg string) (*model.Identity, error) {
	identity := &model.Identity{}
	var role string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.ID, &identity.UniversityID, &identity.Name, &role, &identity.PasswordHash, &identity.CreatedAt,
	)

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find identity", err)
	}

	identity.Role = model.Role(role)
	return identity, nil
}

// Create は利用者を作成する。学籍番号が重複する場合はErrDuplicateを返す。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, university_id, name, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		identity.ID, identity.UniversityID, identity.Name, string(identity.Role), identity.PasswordHash, identity.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("university_id %s: %w", identity.UniversityID, ErrDuplicate)
	}
	if err != nil {
		return wrapErr("failed to insert identity", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
