package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/rollcall/internal/middleware"
)

// healthCheckTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.IdentityVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータス計測を行わない

	// 運用エンドポイント
	HealthCheck    func(ctx context.Context) error // nilの場合は常に正常
	MetricsHandler http.Handler                    // nilの場合は /metrics を公開しない

	// ドメインサービス
	AuthService       AuthServiceInterface
	AttendanceService AttendanceServiceInterface
	CourseService     CourseServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → Logging → StatusMetrics → SecurityHeaders → CORS
//	  認証不要: /health, /metrics, LoginRateLimit(/api/login, /api/register)
//	  認証必須: Auth → RateLimit(General) [→ RateLimit(CheckIn)]
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	attendanceHandler := NewAttendanceHandler(deps.AttendanceService)
	courseHandler := NewCourseHandler(deps.CourseService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.LoginMiddleware())
		r.Post("/api/login", authHandler.Login)
		r.Post("/api/register", authHandler.Register)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", authHandler.Me)

		// コース・履修登録
		r.Route("/api/courses", func(r chi.Router) {
			r.Get("/", courseHandler.ListCourses)
			r.Post("/", courseHandler.CreateCourse)
			r.Get("/all", courseHandler.ListAvailableCourses)
			r.Get("/{id}/lectures", courseHandler.ListLectures)
		})
		r.Post("/api/enrollments", courseHandler.Enroll)

		// 講義と出席トークン発行
		r.Route("/api/lectures", func(r chi.Router) {
			r.Post("/", courseHandler.CreateLecture)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", courseHandler.DeleteLecture)
				r.Post("/credentials", attendanceHandler.IssueCredential)
				r.Post("/qrcode", attendanceHandler.IssueCredential)
			})
		})

		// 出席登録（出席登録専用レート制限を追加）
		r.With(deps.RateLimiter.CheckInMiddleware()).Post("/api/attendance/check-in", attendanceHandler.RedeemCredential)
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
