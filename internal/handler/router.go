package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cinequiz/internal/metrics"
	"github.com/hitoshi/cinequiz/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer
	HealthChecker Pinger

	// サービス
	AuthService         AuthServiceInterface
	GamificationService GamificationServiceInterface
	MovieService        MovieServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//
// 認証ルートは認証用レート制限、ユーザールートはトークン検証と一般レート制限を通る。
// 認証・ユーザールートは/apiプレフィックス付きでも公開する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.GamificationService)
	movieHandler := NewMovieHandler(deps.MovieService)

	// --- 認証不要のルート ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	authRoutes := func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Get("/verify", authHandler.Verify)
	}
	r.Route("/auth", authRoutes)
	r.Route("/api/auth", authRoutes)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	userRoutes := func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Get("/profile", userHandler.Profile)
		r.Post("/update-level", userHandler.UpdateLevel)
		r.Post("/update-score", userHandler.UpdateScore)
		r.Get("/leaderboard", userHandler.Leaderboard)
	}
	r.Route("/user", userRoutes)
	r.Route("/api/user", userRoutes)

	// 映画メタデータ（認証不要、一般レート制限）
	r.Route("/api/movies", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Get("/search", movieHandler.Search)
		r.Get("/popular", movieHandler.Popular)
		r.Get("/category/{category}", movieHandler.Category)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", movieHandler.Movie)
			r.Get("/videos", movieHandler.Videos)
			r.Get("/cast", movieHandler.Cast)
			r.Get("/watch", movieHandler.Watch)
		})
	})

	return r
}
