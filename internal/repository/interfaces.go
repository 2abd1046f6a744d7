// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/rollcall/internal/model"
)

// IdentityRepository は利用者データの永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByUniversityID は学籍番号（ログイン識別子）で利用者を取得する。
	// 見つからない場合はnilを返す。
	FindByUniversityID(ctx context.Context, universityID string) (*model.Identity, error)

	// Create は利用者を作成する。学籍番号が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, identity *model.Identity) error
}

// CourseRepository はコースデータの永続化インターフェース。
type CourseRepository interface {
	// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Course, error)

	// Create はコースを作成する。
	Create(ctx context.Context, course *model.Course) error

	// ListByLecturer は講師が担当するコースをコースコード順で返す。
	ListByLecturer(ctx context.Context, lecturerID string) ([]*model.Course, error)

	// ListByStudent は学生が履修しているコースをコースコード順で返す。
	ListByStudent(ctx context.Context, studentID string) ([]*model.Course, error)

	// ListNotEnrolled は学生がまだ履修していないコースをコースコード順で返す。
	ListNotEnrolled(ctx context.Context, studentID string) ([]*model.Course, error)
}

// LectureRepository は講義データの永続化インターフェース。
type LectureRepository interface {
	// FindByID は指定IDの講義を担当講師ID付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Lecture, error)

	// Create は講義を作成する。
	Create(ctx context.Context, lecture *model.Lecture) error

	// DeleteByID は指定IDの講義を削除する。存在しない場合はErrNotFoundを返す。
	// 関連するqr_codes、attendanceはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListByCourse はコースの講義を開始時刻の新しい順で返す。
	ListByCourse(ctx context.Context, courseID string) ([]*model.Lecture, error)
}

// EnrollmentRepository は履修登録の永続化インターフェース。
type EnrollmentRepository interface {
	// Create は履修登録を作成する。登録済みの場合はErrDuplicateを返す。
	Create(ctx context.Context, enrollment *model.Enrollment) error

	// Exists は学生がコースを履修しているかどうかを返す。
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
}

// CredentialRepository は出席トークンの永続化インターフェース。
type CredentialRepository interface {
	// Create は出席トークンを保存する。
	// トークン文字列が衝突した場合はErrDuplicateを返す。
	Create(ctx context.Context, credential *model.Credential) error
}

// RedemptionTx は出席登録を1つの原子的な単位として実行するためのストア操作。
// Transactor.WithinTx のコールバック内でのみ有効。
type RedemptionTx interface {
	// FindCredentialByToken はトークン文字列で出席トークンを取得する。
	// 見つからない場合はnilを返す。期限の判定は呼び出し側で行う。
	FindCredentialByToken(ctx context.Context, token string) (*model.Credential, error)

	// FindLecture は講義を取得する。見つからない場合はnilを返す。
	FindLecture(ctx context.Context, lectureID string) (*model.Lecture, error)

	// IsEnrolled は学生がコースを履修しているかどうかを返す。
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)

	// InsertRedemption は出席記録を条件付きで挿入する。
	// (student_id, lecture_id) が既に存在する場合はErrDuplicateを返す。
	// 存在確認と挿入を分けず、一意制約違反そのものを重複の合図とする。
	InsertRedemption(ctx context.Context, redemption *model.Redemption) error
}

// Transactor は出席登録の原子的な実行単位を提供する。
// fnがエラーを返した場合、単位内の書き込みはすべて破棄される。
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx RedemptionTx) error) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// DBTX は*sql.DBと*sql.Txの共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
