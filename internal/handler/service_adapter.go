package handler

import (
	"context"
	"time"

	"github.com/hitoshi/rollcall/internal/checkin"
	"github.com/hitoshi/rollcall/internal/course"
	"github.com/hitoshi/rollcall/internal/identity"
	"github.com/hitoshi/rollcall/internal/model"
)

// IdentityServiceAdapter は identity.Service を AuthServiceInterface に適合させるアダプタ。
type IdentityServiceAdapter struct {
	svc *identity.Service
}

// NewIdentityServiceAdapter はIdentityServiceAdapterを生成する。
func NewIdentityServiceAdapter(svc *identity.Service) *IdentityServiceAdapter {
	return &IdentityServiceAdapter{svc: svc}
}

// Login は認証を行い、認証トークンと利用者情報をhandlerレスポンス型で返す。
func (a *IdentityServiceAdapter) Login(ctx context.Context, universityID, password string) (*loginResponse, error) {
	signed, err := a.svc.Authenticate(ctx, universityID, password)
	if err != nil {
		return nil, err
	}
	return &loginResponse{
		Token:     signed.Assertion,
		ExpiresAt: signed.ExpiresAt,
		User:      toIdentityResponse(signed.Identity),
	}, nil
}

// Register は利用者を登録し、発行したIDを返す。
func (a *IdentityServiceAdapter) Register(ctx context.Context, req registerRequest) (*registerResponse, error) {
	created, err := a.svc.Register(ctx, identity.RegisterInput{
		UniversityID: req.UniversityID,
		Password:     req.Password,
		Name:         req.Name,
		Role:         model.Role(req.Role),
	})
	if err != nil {
		return nil, err
	}
	return &registerResponse{UserID: created.ID}, nil
}

// CheckInServiceAdapter は checkin.Service を AttendanceServiceInterface に適合させるアダプタ。
type CheckInServiceAdapter struct {
	svc *checkin.Service
}

// NewCheckInServiceAdapter はCheckInServiceAdapterを生成する。
func NewCheckInServiceAdapter(svc *checkin.Service) *CheckInServiceAdapter {
	return &CheckInServiceAdapter{svc: svc}
}

// IssueCredential は出席トークンを発行しhandlerレスポンス型で返す。
func (a *CheckInServiceAdapter) IssueCredential(ctx context.Context, caller model.Identity, lectureID string, validity *time.Duration) (*credentialResponse, error) {
	issued, err := a.svc.IssueCredential(ctx, caller, lectureID, validity)
	if err != nil {
		return nil, err
	}
	c := issued.Credential
	return &credentialResponse{
		CredentialID:     c.ID,
		LectureID:        c.LectureID,
		Token:            c.Token,
		IssuedAt:         c.IssuedAt,
		ExpiresAt:        c.ExpiresAt,
		RemainingSeconds: issued.RemainingSeconds,
		QRImage:          issued.QRImage,
	}, nil
}

// RedeemCredential は出席トークンを引き換えhandlerレスポンス型で返す。
func (a *CheckInServiceAdapter) RedeemCredential(ctx context.Context, caller model.Identity, token string) (*redemptionResponse, error) {
	r, err := a.svc.RedeemCredential(ctx, caller, token)
	if err != nil {
		return nil, err
	}
	return &redemptionResponse{
		RedemptionID: r.ID,
		LectureID:    r.LectureID,
		RedeemedAt:   r.RedeemedAt,
	}, nil
}

// CourseServiceAdapter は course.Service を CourseServiceInterface に適合させるアダプタ。
type CourseServiceAdapter struct {
	svc *course.Service
}

// NewCourseServiceAdapter はCourseServiceAdapterを生成する。
func NewCourseServiceAdapter(svc *course.Service) *CourseServiceAdapter {
	return &CourseServiceAdapter{svc: svc}
}

// CreateCourse はコースを作成しhandlerレスポンス型で返す。
func (a *CourseServiceAdapter) CreateCourse(ctx context.Context, caller model.Identity, req createCourseRequest) (*courseResponse, error) {
	c, err := a.svc.CreateCourse(ctx, caller, course.CreateCourseInput{Code: req.Code, Name: req.Name})
	if err != nil {
		return nil, err
	}
	resp := toCourseResponse(c)
	return &resp, nil
}

// CreateLecture は講義を作成しhandlerレスポンス型で返す。
func (a *CourseServiceAdapter) CreateLecture(ctx context.Context, caller model.Identity, req createLectureRequest) (*lectureResponse, error) {
	l, err := a.svc.CreateLecture(ctx, caller, course.CreateLectureInput{
		CourseID: req.CourseID,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		return nil, err
	}
	resp := toLectureResponse(l)
	return &resp, nil
}

// DeleteLecture は講義を削除する。
func (a *CourseServiceAdapter) DeleteLecture(ctx context.Context, caller model.Identity, lectureID string) error {
	return a.svc.DeleteLecture(ctx, caller, lectureID)
}

// Enroll は履修登録を行いhandlerレスポンス型で返す。
func (a *CourseServiceAdapter) Enroll(ctx context.Context, caller model.Identity, courseID string) (*enrollmentResponse, error) {
	e, err := a.svc.Enroll(ctx, caller, courseID)
	if err != nil {
		return nil, err
	}
	return &enrollmentResponse{
		StudentID: e.StudentID,
		CourseID:  e.CourseID,
		CreatedAt: e.CreatedAt,
	}, nil
}

// ListCourses はコース一覧をhandlerレスポンス型で返す。
func (a *CourseServiceAdapter) ListCourses(ctx context.Context, caller model.Identity) (*courseListResponse, error) {
	courses, err := a.svc.ListCourses(ctx, caller)
	if err != nil {
		return nil, err
	}
	return toCourseListResponse(courses), nil
}

// ListAvailableCourses は未履修のコース一覧をhandlerレスポンス型で返す。
func (a *CourseServiceAdapter) ListAvailableCourses(ctx context.Context, caller model.Identity) (*courseListResponse, error) {
	courses, err := a.svc.ListAvailableCourses(ctx, caller)
	if err != nil {
		return nil, err
	}
	return toCourseListResponse(courses), nil
}

// ListLectures は講義一覧をhandlerレスポンス型で返す。
func (a *CourseServiceAdapter) ListLectures(ctx context.Context, caller model.Identity, courseID string) (*lectureListResponse, error) {
	lectures, err := a.svc.ListLectures(ctx, caller, courseID)
	if err != nil {
		return nil, err
	}
	resp := &lectureListResponse{Lectures: make([]lectureResponse, 0, len(lectures))}
	for _, l := range lectures {
		resp.Lectures = append(resp.Lectures, toLectureResponse(l))
	}
	return resp, nil
}

func toCourseResponse(c *model.Course) courseResponse {
	return courseResponse{
		CourseID:   c.ID,
		Code:       c.Code,
		Name:       c.Name,
		LecturerID: c.LecturerID,
		CreatedAt:  c.CreatedAt,
	}
}

func toCourseListResponse(courses []*model.Course) *courseListResponse {
	resp := &courseListResponse{Courses: make([]courseResponse, 0, len(courses))}
	for _, c := range courses {
		resp.Courses = append(resp.Courses, toCourseResponse(c))
	}
	return resp
}

func toLectureResponse(l *model.Lecture) lectureResponse {
	return lectureResponse{
		LectureID: l.ID,
		CourseID:  l.CourseID,
		StartsAt:  l.StartsAt,
		EndsAt:    l.EndsAt,
	}
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*IdentityServiceAdapter)(nil)
var _ AttendanceServiceInterface = (*CheckInServiceAdapter)(nil)
var _ CourseServiceInterface = (*CourseServiceAdapter)(nil)
