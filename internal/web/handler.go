// Package web はブラウザに表示するページのルーティングとハンドラーを提供する。
//
// 各ハンドラーはAPIクライアントを呼び出し、結果をhtml/templateで描画する。
// クライアント側の状態（セッション）は全てsession.Storeが保持する。
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/bookreview/internal/model"
	"github.com/hitoshi/bookreview/internal/security"
	"github.com/hitoshi/bookreview/internal/session"
)

// SessionService はハンドラーが必要とするセッション操作のインターフェース。
// session.Storeが実装する。
type SessionService interface {
	Snapshot() session.State
	Login(ctx context.Context, creds model.Credentials) (*model.User, error)
	Register(ctx context.Context, in model.RegisterInput) (*model.User, error)
	Logout(ctx context.Context)
}

// BookService は書籍APIのインターフェース。apiclient.Clientが実装する。
type BookService interface {
	ListBooks(ctx context.Context, q model.BookQuery) (*model.BookList, error)
	GetBook(ctx context.Context, id string) (*model.Book, error)
	CreateBook(ctx context.Context, in model.BookInput) (*model.Book, error)
	UpdateBook(ctx context.Context, id string, in model.BookInput) (*model.Book, error)
	DeleteBook(ctx context.Context, id string) error
}

// ReviewService はレビューAPIのインターフェース。apiclient.Clientが実装する。
type ReviewService interface {
	ListBookReviews(ctx context.Context, bookID string) ([]model.Review, error)
	ListUserReviews(ctx context.Context) ([]model.Review, error)
	AddReview(ctx context.Context, bookID string, in model.ReviewInput) (*model.Review, error)
	UpdateReview(ctx context.Context, id string, in model.ReviewInput) (*model.Review, error)
	DeleteReview(ctx context.Context, id string) error
}

// デモ用のログイン情報。ランディングページに表示する。
const (
	demoEmail    = "abcd@gmail.com"
	demoPassword = "12345678"
)

// AuthHandler はログイン・新規登録・ログアウトのハンドラー。
type AuthHandler struct {
	*base
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(b *base) *AuthHandler {
	return &AuthHandler{base: b}
}

// BookHandler は書籍一覧・詳細・登録・編集・削除と、書籍ページ上のレビュー操作のハンドラー。
type BookHandler struct {
	*base
	books     BookService
	reviews   ReviewService
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(b *base, books BookService, reviews ReviewService, sanitizer security.ContentSanitizer, now func() time.Time) *BookHandler {
	if now == nil {
		now = time.Now
	}
	return &BookHandler{
		base:      b,
		books:     books,
		reviews:   reviews,
		sanitizer: sanitizer,
		now:       now,
	}
}

// ProfileHandler はプロフィールページのハンドラー。
type ProfileHandler struct {
	*base
	books   BookService
	reviews ReviewService
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(b *base, books BookService, reviews ReviewService) *ProfileHandler {
	return &ProfileHandler{
		base:    b,
		books:   books,
		reviews: reviews,
	}
}

func newBase(sessions SessionService, v *views, logger *slog.Logger) *base {
	if logger == nil {
		logger = slog.Default()
	}
	return &base{sessions: sessions, views: v, logger: logger}
}
