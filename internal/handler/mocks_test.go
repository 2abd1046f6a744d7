package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFn    func(ctx context.Context, universityID, password string) (*loginResponse, error)
	registerFn func(ctx context.Context, req registerRequest) (*registerResponse, error)
}

func (m *mockAuthService) Login(ctx context.Context, universityID, password string) (*loginResponse, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, universityID, password)
	}
	return nil, nil
}

func (m *mockAuthService) Register(ctx context.Context, req registerRequest) (*registerResponse, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, req)
	}
	return nil, nil
}

// mockAttendanceService はAttendanceServiceInterfaceのモック実装。
type mockAttendanceService struct {
	issueFn  func(ctx context.Context, caller model.Identity, lectureID string, validity *time.Duration) (*credentialResponse, error)
	redeemFn func(ctx context.Context, caller model.Identity, token string) (*redemptionResponse, error)
}

func (m *mockAttendanceService) IssueCredential(ctx context.Context, caller model.Identity, lectureID string, validity *time.Duration) (*credentialResponse, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, caller, lectureID, validity)
	}
	return nil, nil
}

func (m *mockAttendanceService) RedeemCredential(ctx context.Context, caller model.Identity, token string) (*redemptionResponse, error) {
	if m.redeemFn != nil {
		return m.redeemFn(ctx, caller, token)
	}
	return nil, nil
}

// mockCourseService はCourseServiceInterfaceのモック実装。
type mockCourseService struct {
	createCourseFn  func(ctx context.Context, caller model.Identity, req createCourseRequest) (*courseResponse, error)
	createLectureFn func(ctx context.Context, caller model.Identity, req createLectureRequest) (*lectureResponse, error)
	deleteLectureFn func(ctx context.Context, caller model.Identity, lectureID string) error
	enrollFn        func(ctx context.Context, caller model.Identity, courseID string) (*enrollmentResponse, error)
	listCoursesFn   func(ctx context.Context, caller model.Identity) (*courseListResponse, error)
	listAvailableFn func(ctx context.Context, caller model.Identity) (*courseListResponse, error)
	listLecturesFn  func(ctx context.Context, caller model.Identity, courseID string) (*lectureListResponse, error)
}

func (m *mockCourseService) CreateCourse(ctx context.Context, caller model.Identity, req createCourseRequest) (*courseResponse, error) {
	if m.createCourseFn != nil {
		return m.createCourseFn(ctx, caller, req)
	}
	return nil, nil
}

func (m *mockCourseService) CreateLecture(ctx context.Context, caller model.Identity, req createLectureRequest) (*lectureResponse, error) {
	if m.createLectureFn != nil {
		return m.createLectureFn(ctx, caller, req)
	}
	return nil, nil
}

func (m *mockCourseService) DeleteLecture(ctx context.Context, caller model.Identity, lectureID string) error {
	if m.deleteLectureFn != nil {
		return m.deleteLectureFn(ctx, caller, lectureID)
	}
	return nil
}

func (m *mockCourseService) Enroll(ctx context.Context, caller model.Identity, courseID string) (*enrollmentResponse, error) {
	if m.enrollFn != nil {
		return m.enrollFn(ctx, caller, courseID)
	}
	return nil, nil
}

func (m *mockCourseService) ListCourses(ctx context.Context, caller model.Identity) (*courseListResponse, error) {
	if m.listCoursesFn != nil {
		return m.listCoursesFn(ctx, caller)
	}
	return &courseListResponse{Courses: []courseResponse{}}, nil
}

func (m *mockCourseService) ListAvailableCourses(ctx context.Context, caller model.Identity) (*courseListResponse, error) {
	if m.listAvailableFn != nil {
		return m.listAvailableFn(ctx, caller)
	}
	return &courseListResponse{Courses: []courseResponse{}}, nil
}

func (m *mockCourseService) ListLectures(ctx context.Context, caller model.Identity, courseID string) (*lectureListResponse, error) {
	if m.listLecturesFn != nil {
		return m.listLecturesFn(ctx, caller, courseID)
	}
	return &lectureListResponse{Lectures: []lectureResponse{}}, nil
}

// --- テストヘルパー ---

var (
	testLecturer = model.Identity{ID: "lecturer-1", UniversityID: "L001", Name: "Lecturer", Role: model.RoleLecturer}
	testStudent  = model.Identity{ID: "student-1", UniversityID: "S001", Name: "Student", Role: model.RoleStudent}
)

// withIdentity はテスト用にリクエストコンテキストに認証済み利用者を注入するヘルパー。
func withIdentity(r *http.Request, identity model.Identity) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), identity)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
