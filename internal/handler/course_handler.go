package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/model"
)

// CourseServiceInterface はコース管理ハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	// CreateCourse は講師が担当するコースを作成する。
	CreateCourse(ctx context.Context, caller model.Identity, req createCourseRequest) (*courseResponse, error)
	// CreateLecture はコース担当講師が講義を作成する。
	CreateLecture(ctx context.Context, caller model.Identity, req createLectureRequest) (*lectureResponse, error)
	// DeleteLecture は担当講師が講義を削除する。
	DeleteLecture(ctx context.Context, caller model.Identity, lectureID string) error
	// Enroll は学生をコースに履修登録する。
	Enroll(ctx context.Context, caller model.Identity, courseID string) (*enrollmentResponse, error)
	// ListCourses は講師の担当コース、または学生の履修中コースを返す。
	ListCourses(ctx context.Context, caller model.Identity) (*courseListResponse, error)
	// ListAvailableCourses は学生がまだ履修していないコースを返す。
	ListAvailableCourses(ctx context.Context, caller model.Identity) (*courseListResponse, error)
	// ListLectures はコースの講義を開始時刻の新しい順で返す。
	ListLectures(ctx context.Context, caller model.Identity, courseID string) (*lectureListResponse, error)
}

// CourseHandler はコース・講義・履修登録のHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface) *CourseHandler {
	return &CourseHandler{
		service: service,
	}
}

// createCourseRequest はコース作成リクエストのボディ。
type createCourseRequest struct {
	Code string `json:"course_code"`
	Name string `json:"course_name"`
}

// createLectureRequest は講義作成リクエストのボディ。時刻はRFC3339。
type createLectureRequest struct {
	CourseID string    `json:"course_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// enrollRequest は履修登録リクエストのボディ。
type enrollRequest struct {
	CourseID string `json:"course_id"`
}

// courseResponse はコース情報のAPIレスポンス。
type courseResponse struct {
	CourseID   string    `json:"course_id"`
	Code       string    `json:"course_code"`
	Name       string    `json:"course_name"`
	LecturerID string    `json:"lecturer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// lectureResponse は講義情報のAPIレスポンス。
type lectureResponse struct {
	LectureID string    `json:"lecture_id"`
	CourseID  string    `json:"course_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// courseListResponse はコース一覧のAPIレスポンス。
type courseListResponse struct {
	Courses []courseResponse `json:"courses"`
}

// lectureListResponse は講義一覧のAPIレスポンス。
type lectureListResponse struct {
	Lectures []lectureResponse `json:"lectures"`
}

// enrollmentResponse は履修登録のAPIレスポンス。
type enrollmentResponse struct {
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCourse はコースを作成する。
// POST /api/courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createCourseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.CreateCourse(r.Context(), identity, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// CreateLecture は講義を作成する。
// POST /api/lectures
func (h *CourseHandler) CreateLecture(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createLectureRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.CreateLecture(r.Context(), identity, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// DeleteLecture は講義を削除する。
// DELETE /api/lectures/{id}
func (h *CourseHandler) DeleteLecture(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteLecture(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Enroll は履修登録を行う。
// POST /api/enrollments
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req enrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Enroll(r.Context(), identity, req.CourseID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ListCourses は利用者に関係するコース一覧を返す。
// GET /api/courses
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListCourses(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListAvailableCourses は履修登録可能なコース一覧を返す。
// GET /api/courses/all
func (h *CourseHandler) ListAvailableCourses(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListAvailableCourses(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListLectures はコースの講義一覧を返す。
// GET /api/courses/{id}/lectures
func (h *CourseHandler) ListLectures(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListLectures(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
