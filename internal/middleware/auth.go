// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/rollcall/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済み利用者を格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityVerifier は認証トークンの検証に必要なインターフェース。
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (*model.Identity, error)
}

// NewAuthMiddleware は Authorization: Bearer ヘッダーの認証トークンを検証し、
// 認証済み利用者をリクエストコンテキストに注入するミドルウェアを返す。
// 検証失敗は401、ストア障害は503で応答する。
func NewAuthMiddleware(verifier IdentityVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assertion, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identity, err := verifier.Verify(r.Context(), assertion)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					slog.Error("failed to verify assertion",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				status := http.StatusUnauthorized
				if apiErr.Code == model.ErrCodeStoreUnavailable {
					status = http.StatusServiceUnavailable
				}
				WriteErrorResponse(w, status, apiErr)
				return
			}

			recordIdentity(r.Context(), *identity)
			ctx := ContextWithIdentity(r.Context(), *identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken は Authorization ヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IdentityFromContext はリクエストコンテキストから認証済み利用者を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.ID == "" {
		return model.Identity{}, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストに認証済み利用者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
