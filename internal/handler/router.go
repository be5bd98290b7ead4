package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 共通
	Logger        *slog.Logger
	HealthChecker HealthChecker

	// メトリクス（nilの場合は計測・公開しない）
	HTTPMetrics  middleware.HTTPMetricsRecorder
	AuthFailures middleware.AuthFailureRecorder
	Gatherer     prometheus.Gatherer

	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	TokenChecker      middleware.ActiveTokenChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ユーザー
	UserService    UserServiceInterface
	AvatarMaxBytes int64

	// タスク
	TaskService TaskServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  公開ルート（登録・ログイン）: → RateLimit(Credential)
//	  認証ルート: → Auth → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	userHandler := NewUserHandler(deps.UserService, deps.AvatarMaxBytes)
	taskHandler := NewTaskHandler(deps.TaskService)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.CredentialMiddleware())

		r.Post("/users", userHandler.Register)
		r.Post("/users/login", userHandler.Login)
	})
	r.Get("/users/{id}/avatar", userHandler.GetAvatar)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.TokenChecker, deps.AuthFailures))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー管理
		r.Get("/users", userHandler.List)
		r.Post("/users/logout", userHandler.Logout)
		r.Post("/users/logoutAll", userHandler.LogoutAll)
		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", userHandler.Me)
			r.Patch("/", userHandler.UpdateMe)
			r.Delete("/", userHandler.DeleteMe)
			r.Post("/avatar", userHandler.UploadAvatar)
			r.Delete("/avatar", userHandler.DeleteAvatar)
		})

		// タスク管理
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.Get)
				r.Patch("/", taskHandler.Update)
				r.Delete("/", taskHandler.Delete)
			})
		})
	})

	return r
}
