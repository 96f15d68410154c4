package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookreview/internal/guard"
	"github.com/hitoshi/bookreview/internal/middleware"
	"github.com/hitoshi/bookreview/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セッション
	Sessions     SessionService
	GuardMetrics guard.MetricsRecorder

	// API
	Books   BookService
	Reviews ReviewService

	// ミドルウェア依存
	Sanitizer   security.ContentSanitizer
	RateLimiter *middleware.RateLimiter
	CSRF        middleware.CSRFConfig

	// 運用
	Metrics http.Handler

	Logger *slog.Logger
	Now    func() time.Time
}

// NewRouter は全ページのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Session → Logging → TrackNavigation → RateLimit(General) → CSRF
//
// 保護されたルートにはさらにGuardを適用する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewContentSanitizer()
	}

	v, err := loadViews()
	if err != nil {
		return nil, fmt.Errorf("failed to load views: %w", err)
	}
	b := newBase(deps.Sessions, v, logger)

	guardOpts := []guard.Option{guard.WithLoadingHandler(http.HandlerFunc(b.loading))}
	if deps.GuardMetrics != nil {
		guardOpts = append(guardOpts, guard.WithMetrics(deps.GuardMetrics))
	}
	g := guard.New(deps.Sessions, logger, guardOpts...)

	authHandler := NewAuthHandler(b)
	bookHandler := NewBookHandler(b, deps.Books, deps.Reviews, sanitizer, deps.Now)
	profileHandler := NewProfileHandler(b, deps.Books, deps.Reviews)

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewSessionMiddleware(deps.Sessions))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(TrackNavigation)
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.GeneralMiddleware())
	}
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	// --- 運用 ---
	r.Get("/health", healthHandler(deps.Sessions))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// --- 認証不要のルート ---
	r.Get("/", bookHandler.Index)
	r.Get("/book/{id}", bookHandler.Details)
	r.Post("/logout", authHandler.Logout)

	// ログイン・新規登録（認証用レート制限を追加）
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.AuthMiddleware())
		}
		r.Get("/login", authHandler.LoginPage)
		r.Post("/login", authHandler.Login)
		r.Get("/register", authHandler.RegisterPage)
		r.Post("/register", authHandler.Register)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(g.Middleware)

		// 書籍
		r.Get("/add-book", bookHandler.NewForm)
		r.Post("/add-book", bookHandler.Create)
		r.Get("/edit-book/{id}", bookHandler.EditForm)
		r.Post("/edit-book/{id}", bookHandler.Update)
		r.Post("/book/{id}/delete", bookHandler.Delete)

		// レビュー
		r.Post("/book/{id}/reviews", bookHandler.AddReview)
		r.Post("/reviews/{id}", bookHandler.UpdateReview)
		r.Post("/reviews/{id}/delete", bookHandler.DeleteReview)

		// プロフィール
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Show)
			r.Post("/books/{id}/delete", profileHandler.DeleteBook)
			r.Post("/reviews/{id}/delete", profileHandler.DeleteReview)
		})
	})

	// 未定義のパスはトップページへ
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	return r, nil
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

func healthHandler(sessions SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(healthResponse{
			Status:  "ok",
			Session: guard.Decide(sessions.Snapshot()).String(),
		})
	}
}
