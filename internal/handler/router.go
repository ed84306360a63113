package handler

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	TrustedProxies    []netip.Prefix // 転送ヘッダーを信頼する接続元。空の場合は信頼しない
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	HTTPRecorder      metrics.HTTPRecorder // nilの場合はHTTPメトリクスを記録しない
	MetricsHandler    http.Handler         // nilの場合は/metricsを公開しない

	// ヘルスチェック
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface

	// 蔵書・貸出
	BookService BookServiceInterface
	Ledger      LedgerInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  └ 認証が必要なルート: BearerAuth → RateLimit(General)
//	  └ ログイン: RateLimit(Login)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRealIPMiddleware(deps.TrustedProxies))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, notFoundRouteError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusMethodNotAllowed, methodNotAllowedError())
	})

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService)
	bookHandler := NewBookHandler(deps.BookService)
	checkoutHandler := NewCheckoutHandler(deps.Ledger)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Live)
	r.Get("/api/v1/health", healthHandler.Live)
	r.Get("/api/v1/health/db", healthHandler.DB)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.With(deps.RateLimiter.LoginMiddleware()).Post("/auth/login", authHandler.Login)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/api/v1/books", func(r chi.Router) {
			r.Get("/", bookHandler.ListBooks)
			r.Get("/checkouts", checkoutHandler.ListUnreturned)

			r.Route("/{book_id}", func(r chi.Router) {
				r.Get("/", bookHandler.GetBook)
				r.Post("/checkouts", checkoutHandler.CheckoutBook)
				r.Put("/checkouts/{checkout_id}/returned", checkoutHandler.ReturnBook)
				r.Get("/checkout-history", checkoutHandler.History)
			})
		})

		r.Route("/api/v1/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Post("/", userHandler.RegisterUser)

			r.Get("/me", userHandler.Me)
			r.Put("/me/password", userHandler.ChangePassword)
			r.Get("/me/checkouts", checkoutHandler.ListMyCheckouts)

			r.Delete("/{user_id}", userHandler.DeleteUser)
			r.Put("/{user_id}/role", userHandler.ChangeRole)
		})
	})

	return r
}
