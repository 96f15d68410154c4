package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookreview/internal/model"
)

// maxProfilePages はプロフィールで自分の書籍を探す際に読む一覧ページ数の上限。
const maxProfilePages = 20

type profileView struct {
	Books   []model.Book
	Reviews []model.Review
}

// Show は自分が登録した書籍と書いたレビューを表示する。
// GET /profile
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, http.StatusOK, nil)
}

// DeleteBook はプロフィールから書籍を削除する。
// POST /profile/books/{id}/delete
func (h *ProfileHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.books.DeleteBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderProfile(w, r, statusForError(apiErr), apiErr)
		})
		return
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// DeleteReview はプロフィールからレビューを削除する。
// POST /profile/reviews/{id}/delete
func (h *ProfileHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.reviews.DeleteReview(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderProfile(w, r, statusForError(apiErr), apiErr)
		})
		return
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *ProfileHandler) renderProfile(w http.ResponseWriter, r *http.Request, status int, actionErr *model.APIError) {
	user := h.currentUser(r)
	if user == nil {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}

	var view profileView
	books, err := h.ownBooks(r.Context(), user)
	if err == nil {
		view.Books = books
		view.Reviews, err = h.reviews.ListUserReviews(r.Context())
	}
	if err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			if actionErr == nil {
				actionErr, status = apiErr, statusForError(apiErr)
			}
			h.render(w, r, status, pageProfile, pageData{Title: "Profile", User: user, Error: actionErr, Data: view})
		})
		return
	}

	h.render(w, r, status, pageProfile, pageData{Title: "Profile", User: user, Error: actionErr, Data: view})
}

// ownBooks は書籍一覧を順に読み、登録者が自分の書籍だけを返す。
// APIに登録者での絞り込みがないため、クライアント側で絞り込む。
func (h *ProfileHandler) ownBooks(ctx context.Context, user *model.User) ([]model.Book, error) {
	q := model.DefaultBookQuery()
	var own []model.Book
	for page := 1; page <= maxProfilePages; page++ {
		q.Page = page
		list, err := h.books.ListBooks(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, b := range list.Books {
			if b.OwnedBy(user) {
				own = append(own, b)
			}
		}
		if !list.Pagination.HasNext {
			break
		}
	}
	return own, nil
}
