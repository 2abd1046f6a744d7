package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/rollcall/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用したコースリポジトリ。
type PostgresCourseRepo struct {
	db DBTX
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db DBTX) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	if !validID(id) {
		return nil, nil
	}
	course := &model.Course{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, course_code, course_name, lecturer_id, created_at FROM courses WHERE id = $1`,
		id,
	).Scan(&course.ID, &course.Code, &course.Name, &course.LecturerID, &course.CreatedAt)

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find course", err)
	}

	return course, nil
}

// Create はコースを作成する。
func (r *PostgresCourseRepo) Create(ctx context.Context, course *model.Course) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (id, course_code, course_name, lecturer_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		course.ID, course.Code, course.Name, course.LecturerID, course.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("course %s: %w", course.Code, ErrDuplicate)
	}
	if err != nil {
		return wrapErr("failed to insert course", err)
	}
	return nil
}

const courseColumns = `c.id, c.course_code, c.course_name, c.lecturer_id, c.created_at`

// ListByLecturer は講師が担当するコースを取得する。
func (r *PostgresCourseRepo) ListByLecturer(ctx context.Context, lecturerID string) ([]*model.Course, error) {
	if !validID(lecturerID) {
		return []*model.Course{}, nil
	}
	return r.list(ctx,
		`SELECT `+courseColumns+` FROM courses c
		 WHERE c.lecturer_id = $1
		 ORDER BY c.course_code, c.id`,
		lecturerID,
	)
}

// ListByStudent は学生が履修しているコースを取得する。
func (r *PostgresCourseRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.Course, error) {
	if !validID(studentID) {
		return []*model.Course{}, nil
	}
	return r.list(ctx,
		`SELECT `+courseColumns+` FROM courses c
		 JOIN enrollments e ON e.course_id = c.id
		 WHERE e.student_id = $1
		 ORDER BY c.course_code, c.id`,
		studentID,
	)
}

// ListNotEnrolled は学生がまだ履修していないコースを取得する。
func (r *PostgresCourseRepo) ListNotEnrolled(ctx context.Context, studentID string) ([]*model.Course, error) {
	if !validID(studentID) {
		return r.list(ctx, `SELECT `+courseColumns+` FROM courses c ORDER BY c.course_code, c.id`)
	}
	return r.list(ctx,
		`SELECT `+courseColumns+` FROM courses c
		 WHERE NOT EXISTS (
		     SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.student_id = $1
		 )
		 ORDER BY c.course_code, c.id`,
		studentID,
	)
}

func (r *PostgresCourseRepo) list(ctx context.Context, query string, args ...any) ([]*model.Course, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("failed to list courses", err)
	}
	defer rows.Close()

	courses := []*model.Course{}
	for rows.Next() {
		c := &model.Course{}
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("failed to iterate courses", err)
	}
	return courses, nil
}

// PostgresLectureRepo はPostgreSQLを使用した講義リポジトリ。
type PostgresLectureRepo struct {
	db DBTX
}

// NewPostgresLectureRepo はPostgresLectureRepoを生成する。
func NewPostgresLectureRepo(db DBTX) *PostgresLectureRepo {
	return &PostgresLectureRepo{db: db}
}

// FindByID は指定IDの講義を担当講師ID付きで取得する。見つからない場合はnilを返す。
func (r *PostgresLectureRepo) FindByID(ctx context.Context, id string) (*model.Lecture, error) {
	return findLecture(ctx, r.db, id)
}

// Create は講義を作成する。
func (r *PostgresLectureRepo) Create(ctx context.Context, lecture *model.Lecture) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lectures (id, course_id, starts_at, ends_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		lecture.ID, lecture.CourseID, lecture.StartsAt, lecture.EndsAt, lecture.CreatedAt,
	)
	if err != nil {
		return wrapErr("failed to insert lecture", err)
	}
	return nil
}

// DeleteByID は指定IDの講義を削除する。
// 関連するqr_codes、attendanceはCASCADE削除される。
func (r *PostgresLectureRepo) DeleteByID(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("lecture %s: %w", id, ErrNotFound)
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM lectures WHERE id = $1`,
		id,
	)
	if err != nil {
		return wrapErr("failed to delete lecture", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("lecture %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListByCourse はコースの講義を担当講師ID付きで、開始時刻の新しい順に取得する。
func (r *PostgresLectureRepo) ListByCourse(ctx context.Context, courseID string) ([]*model.Lecture, error) {
	if !validID(courseID) {
		return []*model.Lecture{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.course_id, c.lecturer_id, l.starts_at, l.ends_at, l.created_at
		 FROM lectures l
		 JOIN courses c ON c.id = l.course_id
		 WHERE l.course_id = $1
		 ORDER BY l.starts_at DESC, l.id`,
		courseID,
	)
	if err != nil {
		return nil, wrapErr("failed to list lectures", err)
	}
	defer rows.Close()

	lectures := []*model.Lecture{}
	for rows.Next() {
		l := &model.Lecture{}
		if err := rows.Scan(&l.ID, &l.CourseID, &l.OwnerID, &l.StartsAt, &l.EndsAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lecture: %w", err)
		}
		lectures = append(lectures, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("failed to iterate lectures", err)
	}
	return lectures, nil
}

// findLecture は講義をコースとJOINして担当講師IDとともに取得する。
// トランザクション内外の双方から使用する。
func findLecture(ctx context.Context, db DBTX, id string) (*model.Lecture, error) {
	if !validID(id) {
		return nil, nil
	}
	lecture := &model.Lecture{}
	err := db.QueryRowContext(ctx,
		`SELECT l.id, l.course_id, c.lecturer_id, l.starts_at, l.ends_at, l.created_at
		 FROM lectures l
		 JOIN courses c ON c.id = l.course_id
		 WHERE l.id = $1`,
		id,
	).Scan(&lecture.ID, &lecture.CourseID, &lecture.OwnerID, &lecture.StartsAt, &lecture.EndsAt, &lecture.CreatedAt)

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("failed to find lecture", err)
	}

	return lecture, nil
}

// PostgresEnrollmentRepo はPostgreSQLを使用した履修登録リポジトリ。
type PostgresEnrollmentRepo struct {
	db DBTX
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db DBTX) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// Create は履修登録を作成する。登録済みの場合はErrDuplicateを返す。
func (r *PostgresEnrollmentRepo) Create(ctx context.Context, enrollment *model.Enrollment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (student_id, course_id, created_at)
		 VALUES ($1, $2, $3)`,
		enrollment.StudentID, enrollment.CourseID, enrollment.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("enrollment %s/%s: %w", enrollment.StudentID, enrollment.CourseID, ErrDuplicate)
	}
	if err != nil {
		return wrapErr("failed to insert enrollment", err)
	}
	return nil
}

// Exists は学生がコースを履修しているかどうかを返す。
func (r *PostgresEnrollmentRepo) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	if !validID(studentID) || !validID(courseID) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)`,
		studentID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("failed to check enrollment", err)
	}
	return exists, nil
}

// compile-time interface check
var (
	_ CourseRepository     = (*PostgresCourseRepo)(nil)
	_ LectureRepository    = (*PostgresLectureRepo)(nil)
	_ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
)
