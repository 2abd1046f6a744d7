// Package course はコース・講義・履修登録の作成と参照、講義の削除を提供する。
package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

// CreateCourseInput はコース作成の入力。
type CreateCourseInput struct {
	Code string
	Name string
}

// CreateLectureInput は講義作成の入力。
type CreateLectureInput struct {
	CourseID string
	StartsAt time.Time
	EndsAt   time.Time
}

// Service はコース管理のサービス層。
type Service struct {
	courses     repository.CourseRepository
	lectures    repository.LectureRepository
	enrollments repository.EnrollmentRepository
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	courses repository.CourseRepository,
	lectures repository.LectureRepository,
	enrollments repository.EnrollmentRepository,
) *Service {
	return &Service{
		courses:     courses,
		lectures:    lectures,
		enrollments: enrollments,
		now:         time.Now,
	}
}

// CreateCourse は講師が担当するコースを作成する。
func (s *Service) CreateCourse(ctx context.Context, caller model.Identity, in CreateCourseInput) (*model.Course, error) {
	if !caller.IsLecturer() {
		return nil, model.NewRoleForbiddenError(model.RoleLecturer)
	}
	in.Code = security.SanitizeText(in.Code)
	in.Name = security.SanitizeText(in.Name)
	if in.Code == "" || in.Name == "" {
		return nil, model.NewInvalidRequestError("コースコードとコース名は必須です。")
	}

	c := &model.Course{
		ID:         uuid.New().String(),
		Code:       in.Code,
		Name:       in.Name,
		LecturerID: caller.ID,
		CreatedAt:  s.now(),
	}
	if err := s.courses.Create(ctx, c); err != nil {
		return nil, storeError("コースの作成に失敗しました", err)
	}

	slog.Info("course created", slog.String("course_id", c.ID), slog.String("lecturer_id", caller.ID))
	return c, nil
}

// CreateLecture はコース担当講師が講義を作成する。
// 他の講師のコースは存在しないものとして扱う。
func (s *Service) CreateLecture(ctx context.Context, caller model.Identity, in CreateLectureInput) (*model.Lecture, error) {
	if !caller.IsLecturer() {
		return nil, model.NewRoleForbiddenError(model.RoleLecturer)
	}
	if in.CourseID == "" || in.StartsAt.IsZero() || in.EndsAt.IsZero() {
		return nil, model.NewInvalidRequestError("コースID、開始時刻、終了時刻は必須です。")
	}
	if in.EndsAt.Before(in.StartsAt) {
		return nil, model.NewInvalidRequestError("終了時刻は開始時刻以降を指定してください。")
	}

	c, err := s.courses.FindByID(ctx, in.CourseID)
	if err != nil {
		return nil, storeError("コースの取得に失敗しました", err)
	}
	if c == nil || c.LecturerID != caller.ID {
		return nil, model.NewCourseNotFoundError(in.CourseID)
	}

	l := &model.Lecture{
		ID:        uuid.New().String(),
		CourseID:  c.ID,
		OwnerID:   c.LecturerID,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		CreatedAt: s.now(),
	}
	if err := s.lectures.Create(ctx, l); err != nil {
		return nil, storeError("講義の作成に失敗しました", err)
	}

	slog.Info("lecture created", slog.String("lecture_id", l.ID), slog.String("course_id", c.ID))
	return l, nil
}

// DeleteLecture は担当講師が講義を削除する。出席トークンと出席記録も連鎖して削除される。
func (s *Service) DeleteLecture(ctx context.Context, caller model.Identity, lectureID string) error {
	if !caller.IsLecturer() {
		return model.NewRoleForbiddenError(model.RoleLecturer)
	}

	l, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		return storeError("講義の取得に失敗しました", err)
	}
	if l == nil {
		return model.NewSessionNotFoundError(lectureID)
	}
	if l.OwnerID != caller.ID {
		return model.NewNotSessionOwnerError(lectureID)
	}

	err = s.lectures.DeleteByID(ctx, lectureID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewSessionNotFoundError(lectureID)
	}
	if err != nil {
		return storeError("講義の削除に失敗しました", err)
	}

	slog.Info("lecture deleted", slog.String("lecture_id", lectureID), slog.String("lecturer_id", caller.ID))
	return nil
}

// Enroll は学生をコースに履修登録する。
func (s *Service) Enroll(ctx context.Context, caller model.Identity, courseID string) (*model.Enrollment, error) {
	if !caller.IsStudent() {
		return nil, model.NewRoleForbiddenError(model.RoleStudent)
	}
	if courseID == "" {
		return nil, model.NewInvalidRequestError("コースIDは必須です。")
	}

	c, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, storeError("コースの取得に失敗しました", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	e := &model.Enrollment{StudentID: caller.ID, CourseID: c.ID, CreatedAt: s.now()}
	err = s.enrollments.Create(ctx, e)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, model.NewAlreadyEnrolledError()
	}
	if err != nil {
		return nil, storeError("履修登録に失敗しました", err)
	}

	slog.Info("student enrolled", slog.String("student_id", caller.ID), slog.String("course_id", c.ID))
	return e, nil
}

// ListCourses は利用者に関係するコースを返す。
// 講師には担当コース、学生には履修中のコースを返す。
func (s *Service) ListCourses(ctx context.Context, caller model.Identity) ([]*model.Course, error) {
	var (
		courses []*model.Course
		err     error
	)
	switch {
	case caller.IsLecturer():
		courses, err = s.courses.ListByLecturer(ctx, caller.ID)
	case caller.IsStudent():
		courses, err = s.courses.ListByStudent(ctx, caller.ID)
	default:
		return nil, model.NewRoleForbiddenError(model.RoleStudent)
	}
	if err != nil {
		return nil, storeError("コース一覧の取得に失敗しました", err)
	}
	return courses, nil
}

// ListAvailableCourses は学生がまだ履修していないコースを返す。
func (s *Service) ListAvailableCourses(ctx context.Context, caller model.Identity) ([]*model.Course, error) {
	if !caller.IsStudent() {
		return nil, model.NewRoleForbiddenError(model.RoleStudent)
	}
	courses, err := s.courses.ListNotEnrolled(ctx, caller.ID)
	if err != nil {
		return nil, storeError("コース一覧の取得に失敗しました", err)
	}
	return courses, nil
}

// ListLectures はコースの講義を開始時刻の新しい順で返す。
// 講師は担当コースのみ、学生は履修中のコースのみ参照できる。
func (s *Service) ListLectures(ctx context.Context, caller model.Identity, courseID string) ([]*model.Lecture, error) {
	c, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, storeError("コースの取得に失敗しました", err)
	}

	switch {
	case caller.IsLecturer():
		if c == nil || c.LecturerID != caller.ID {
			return nil, model.NewCourseNotFoundError(courseID)
		}
	case caller.IsStudent():
		if c == nil {
			return nil, model.NewCourseNotFoundError(courseID)
		}
		enrolled, err := s.enrollments.Exists(ctx, caller.ID, c.ID)
		if err != nil {
			return nil, storeError("履修登録の確認に失敗しました", err)
		}
		if !enrolled {
			return nil, model.NewEnrollmentMissingError()
		}
	default:
		return nil, model.NewRoleForbiddenError(model.RoleStudent)
	}

	lectures, err := s.lectures.ListByCourse(ctx, c.ID)
	if err != nil {
		return nil, storeError("講義一覧の取得に失敗しました", err)
	}
	return lectures, nil
}

func storeError(msg string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		slog.Warn(msg, slog.String("error", err.Error()))
		return model.NewStoreUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
