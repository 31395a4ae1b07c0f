package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/superkart/internal/middleware"
	"github.com/hitoshi/superkart/internal/model"
)

// healthCheckTimeout はヘルスチェック1回あたりの上限時間。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はセッションストアの疎通を確認する。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionProvider   middleware.SessionProvider
	Containers        middleware.SessionContainers
	SessionTerminator SessionTerminator // ログアウト失敗時のセッション終了。nilでもよい
	SessionReleaser   SessionReleaser   // nilでもよい
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nilでもよい

	// カタログ
	Catalog CatalogService

	// 運用
	HealthChecker  HealthChecker // nilの場合は常に正常
	MetricsHandler http.Handler  // nilの場合は/metricsを公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	  → Session → RateLimit(General) → CSRF → ハンドラー
//
// /health と /metrics はセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError(r.Method))
	})

	// --- セッション不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	catalogHandler := NewCatalogHandler(deps.Catalog, logger)
	cartHandler := NewCartHandler(logger)
	wishlistHandler := NewWishlistHandler(logger)
	authHandler := NewAuthHandler(deps.SessionTerminator, deps.SessionReleaser, deps.SessionConfig, logger)
	checkoutHandler := NewCheckoutHandler(logger)

	// --- ブラウザセッションのルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionProvider, deps.Containers, deps.SessionConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// カタログ
		r.Get("/", catalogHandler.Home)
		r.Get("/categories", catalogHandler.Categories)
		r.Get("/categories/{id}", catalogHandler.Category)
		r.Get("/brands", catalogHandler.Brands)
		r.Get("/brands/{id}", catalogHandler.Brand)
		r.Get("/products", catalogHandler.Products)
		r.Get("/products/{id}", catalogHandler.Product)

		// カート
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.Get)
			r.Delete("/", cartHandler.Clear)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{productId}", cartHandler.SetQuantity)
			r.Delete("/items/{productId}", cartHandler.RemoveItem)
		})

		// ウィッシュリスト
		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", wishlistHandler.Get)
			r.Post("/items", wishlistHandler.AddItem)
			r.Delete("/items/{productId}", wishlistHandler.RemoveItem)
			r.Post("/items/{productId}/toggle", wishlistHandler.Toggle)
		})

		// 認証（会員登録・ログインは専用のレート制限を追加）
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// チェックアウト
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.Summary)
			r.Post("/buy-now", checkoutHandler.SetBuyNow)
			r.Delete("/buy-now", checkoutHandler.ClearBuyNow)
			r.Get("/addresses", checkoutHandler.Addresses)
			r.Post("/addresses", checkoutHandler.AddAddress)
			r.Delete("/addresses/{id}", checkoutHandler.RemoveAddress)
			r.Post("/orders", checkoutHandler.PlaceOrder)
		})
	})

	return r
}

// healthHandler はセッションストアの疎通を確認する。
// GET /health
func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				logger.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
