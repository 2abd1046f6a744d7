// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/rollcall/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login は学籍番号とパスワードを検証し、署名済み認証トークンを返す。
	Login(ctx context.Context, universityID, password string) (*loginResponse, error)
	// Register は利用者を登録する。
	Register(ctx context.Context, req registerRequest) (*registerResponse, error)
}

// AuthHandler はログイン・登録関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	UniversityID string `json:"university_id"`
	Password     string `json:"password"`
}

// registerRequest は利用者登録リクエストのボディ。
type registerRequest struct {
	UniversityID string `json:"university_id"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Role         string `json:"role"`
}

// identityResponse は利用者情報のAPIレスポンス。パスワードハッシュは含めない。
type identityResponse struct {
	UserID       string `json:"user_id"`
	UniversityID string `json:"university_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
}

// loginResponse はログイン成功時のAPIレスポンス。
type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      identityResponse `json:"user"`
}

// registerResponse は利用者登録成功時のAPIレスポンス。
type registerResponse struct {
	UserID string `json:"user_id"`
}

// Login はログインを処理する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.UniversityID) == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("学籍番号とパスワードは必須です。"))
		return
	}

	resp, err := h.service.Login(r.Context(), strings.TrimSpace(req.UniversityID), req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Register は利用者登録を処理する。
// POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Me は認証済み利用者の情報を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(&identity))
}

// toIdentityResponse はmodel.IdentityからAPIレスポンスに変換する。
func toIdentityResponse(identity *model.Identity) identityResponse {
	return identityResponse{
		UserID:       identity.ID,
		UniversityID: identity.UniversityID,
		Name:         identity.Name,
		Role:         string(identity.Role),
	}
}
