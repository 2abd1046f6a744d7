package handler

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rollcall/internal/model"
)

// maxExpiryMinutes はtime.Durationに変換しても桁あふれしない分数の上限。
const maxExpiryMinutes = float64(math.MaxInt64 / int64(time.Minute))

// AttendanceServiceInterface は出席ハンドラーが必要とするサービスインターフェース。
type AttendanceServiceInterface interface {
	// IssueCredential は講師が担当講義の出席トークンを発行する。validityがnilなら既定値を使う。
	IssueCredential(ctx context.Context, caller model.Identity, lectureID string, validity *time.Duration) (*credentialResponse, error)
	// RedeemCredential は学生が出席トークンを引き換える。
	RedeemCredential(ctx context.Context, caller model.Identity, token string) (*redemptionResponse, error)
}

// AttendanceHandler は出席トークン発行・出席登録のHTTPハンドラー。
type AttendanceHandler struct {
	service AttendanceServiceInterface
}

// NewAttendanceHandler はAttendanceHandlerを生成する。
func NewAttendanceHandler(service AttendanceServiceInterface) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
	}
}

// issueCredentialRequest は出席トークン発行リクエストのボディ。ボディ自体も省略できる。
type issueCredentialRequest struct {
	ExpiryMinutes *float64 `json:"expiry_minutes"`
}

// checkInRequest は出席登録リクエストのボディ。
type checkInRequest struct {
	Token string `json:"token"`
}

// credentialResponse は出席トークン発行のAPIレスポンス。
type credentialResponse struct {
	CredentialID     string    `json:"credential_id"`
	LectureID        string    `json:"lecture_id"`
	Token            string    `json:"token"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
	QRImage          string    `json:"qr_image,omitempty"`
}

// redemptionResponse は出席登録のAPIレスポンス。
type redemptionResponse struct {
	RedemptionID string    `json:"redemption_id"`
	LectureID    string    `json:"lecture_id"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}

// IssueCredential は出席トークンを発行する。
// POST /api/lectures/{id}/credentials (別名 /api/lectures/{id}/qrcode)
func (h *AttendanceHandler) IssueCredential(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	lectureID := chi.URLParam(r, "id")
	if lectureID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("講義IDは必須です。"))
		return
	}

	var req issueCredentialRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	var validity *time.Duration
	if req.ExpiryMinutes != nil {
		v := minutesToDuration(*req.ExpiryMinutes)
		validity = &v
	}

	resp, err := h.service.IssueCredential(r.Context(), identity, lectureID, validity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// RedeemCredential は出席トークンを引き換えて出席を登録する。
// POST /api/attendance/check-in
func (h *AttendanceHandler) RedeemCredential(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("トークンは必須です。"))
		return
	}

	resp, err := h.service.RedeemCredential(r.Context(), identity, token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// minutesToDuration は分数をtime.Durationに変換する。
// 範囲外の値は発行側で有効期間エラーとなるよう上限に丸める。
func minutesToDuration(minutes float64) time.Duration {
	switch {
	case minutes > maxExpiryMinutes:
		return time.Duration(math.MaxInt64)
	case minutes < -maxExpiryMinutes:
		return time.Duration(math.MinInt64)
	default:
		return time.Duration(minutes * float64(time.Minute))
	}
}
