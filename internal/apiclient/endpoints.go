package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/bookreview/internal/model"
)

// --- 認証 ---

// Register は新規ユーザーを登録する。
// POST /api/auth/register
func (c *Client) Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
	var res model.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, in, &res); err != nil {
		return nil, err
	}
	if err := checkAuthResult(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
	var res model.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, creds, &res); err != nil {
		return nil, err
	}
	if err := checkAuthResult(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Me は現在のトークンに対応するユーザーを返す。
// GET /api/auth/me
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var res struct {
		User *model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &res); err != nil {
		return nil, err
	}
	if res.User == nil || res.User.ID == "" {
		return nil, model.NewDecodeError(http.StatusOK, errMissingField("user"))
	}
	return res.User, nil
}

// checkAuthResult はtokenとuserが揃っていることを確認する。
func checkAuthResult(res *model.AuthResult) error {
	if res.Token == "" {
		return model.NewDecodeError(http.StatusOK, errMissingField("token"))
	}
	if res.User == nil {
		return model.NewDecodeError(http.StatusOK, errMissingField("user"))
	}
	return nil
}

// --- 書籍 ---

// ListBooks は検索条件に一致する書籍一覧を返す。
// GET /api/books?page&search&genre&sortBy&sortOrder
func (c *Client) ListBooks(ctx context.Context, q model.BookQuery) (*model.BookList, error) {
	var res model.BookList
	if err := c.do(ctx, http.MethodGet, "/books", q.Values(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBook は書籍詳細を返す。
// GET /api/books/:id
func (c *Client) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var res struct {
		Book *model.Book `json:"book"`
	}
	if err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(id), nil, nil, &res); err != nil {
		return nil, err
	}
	if res.Book == nil {
		return nil, model.NewDecodeError(http.StatusOK, errMissingField("book"))
	}
	return res.Book, nil
}

// CreateBook は書籍を登録する。
// POST /api/books
func (c *Client) CreateBook(ctx context.Context, in model.BookInput) (*model.Book, error) {
	var res struct {
		Book *model.Book `json:"book"`
	}
	if err := c.do(ctx, http.MethodPost, "/books", nil, in, &res); err != nil {
		return nil, err
	}
	return res.Book, nil
}

// UpdateBook は書籍を更新する。登録者のみ実行できる。
// PUT /api/books/:id
func (c *Client) UpdateBook(ctx context.Context, id string, in model.BookInput) (*model.Book, error) {
	var res struct {
		Book *model.Book `json:"book"`
	}
	if err := c.do(ctx, http.MethodPut, "/books/"+url.PathEscape(id), nil, in, &res); err != nil {
		return nil, err
	}
	return res.Book, nil
}

// DeleteBook は書籍を削除する。登録者のみ実行できる。
// DELETE /api/books/:id
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/books/"+url.PathEscape(id), nil, nil, nil)
}

// --- レビュー ---

// ListBookReviews は書籍のレビュー一覧を返す。
// GET /api/reviews/book/:bookId
func (c *Client) ListBookReviews(ctx context.Context, bookID string) ([]model.Review, error) {
	var res struct {
		Reviews []model.Review `json:"reviews"`
	}
	if err := c.do(ctx, http.MethodGet, "/reviews/book/"+url.PathEscape(bookID), nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Reviews, nil
}

// ListUserReviews はログインユーザーのレビュー一覧を返す。
// GET /api/reviews/user
func (c *Client) ListUserReviews(ctx context.Context) ([]model.Review, error) {
	var res struct {
		Reviews []model.Review `json:"reviews"`
	}
	if err := c.do(ctx, http.MethodGet, "/reviews/user", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Reviews, nil
}

// AddReview は書籍にレビューを投稿する。
// POST /api/reviews/book/:bookId
func (c *Client) AddReview(ctx context.Context, bookID string, in model.ReviewInput) (*model.Review, error) {
	var res struct {
		Review *model.Review `json:"review"`
	}
	if err := c.do(ctx, http.MethodPost, "/reviews/book/"+url.PathEscape(bookID), nil, in, &res); err != nil {
		return nil, err
	}
	return res.Review, nil
}

// UpdateReview はレビューを更新する。投稿者のみ実行できる。
// PUT /api/reviews/:id
func (c *Client) UpdateReview(ctx context.Context, id string, in model.ReviewInput) (*model.Review, error) {
	var res struct {
		Review *model.Review `json:"review"`
	}
	if err := c.do(ctx, http.MethodPut, "/reviews/"+url.PathEscape(id), nil, in, &res); err != nil {
		return nil, err
	}
	return res.Review, nil
}

// DeleteReview はレビューを削除する。投稿者のみ実行できる。
// DELETE /api/reviews/:id
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/reviews/"+url.PathEscape(id), nil, nil, nil)
}

func errMissingField(name string) error {
	return fmt.Errorf("response is missing field: %s", name)
}
