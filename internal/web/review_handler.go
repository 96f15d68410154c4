package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookreview/internal/model"
	"github.com/hitoshi/bookreview/internal/security"
)

// AddReview は書籍にレビューを投稿する。
// 失敗時は入力を保持したまま詳細ページにエラーを表示する。
// POST /book/{id}/reviews
func (h *BookHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	in, err := h.reviewInput(r)
	if err != nil {
		apiErr := h.toAPIError(r, err)
		h.renderDetails(w, r, bookID, statusForError(apiErr), apiErr, in)
		return
	}

	if _, err := h.reviews.AddReview(r.Context(), bookID, in); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderDetails(w, r, bookID, statusForError(apiErr), apiErr, in)
		})
		return
	}

	http.Redirect(w, r, bookPath(bookID), http.StatusSeeOther)
}

// UpdateReview は自分のレビューを更新する。
// POST /reviews/{id}
func (h *BookHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "id")
	bookID := strings.TrimSpace(r.PostFormValue("book_id"))

	in, err := h.reviewInput(r)
	if err == nil {
		_, err = h.reviews.UpdateReview(r.Context(), reviewID, in)
	}
	if err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.reviewFailed(w, r, bookID, apiErr)
		})
		return
	}

	http.Redirect(w, r, returnPath(bookID), http.StatusSeeOther)
}

// DeleteReview は自分のレビューを削除する。
// POST /reviews/{id}/delete
func (h *BookHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "id")
	bookID := strings.TrimSpace(r.PostFormValue("book_id"))

	if err := h.reviews.DeleteReview(r.Context(), reviewID); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.reviewFailed(w, r, bookID, apiErr)
		})
		return
	}

	http.Redirect(w, r, returnPath(bookID), http.StatusSeeOther)
}

// reviewFailed は書籍ページ上のレビュー操作の失敗を表示する。
func (h *BookHandler) reviewFailed(w http.ResponseWriter, r *http.Request, bookID string, apiErr *model.APIError) {
	if bookID == "" {
		h.render(w, r, statusForError(apiErr), pageError, pageData{Title: "Review", Error: apiErr})
		return
	}
	h.renderDetails(w, r, bookID, statusForError(apiErr), apiErr, model.ReviewInput{})
}

// reviewInput はフォームからレビュー入力を読み取り、サニタイズと検証を行う。
func (h *BookHandler) reviewInput(r *http.Request) (model.ReviewInput, error) {
	in := model.ReviewInput{ReviewText: r.PostFormValue("reviewText")}
	if rating, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("rating"))); err == nil {
		in.Rating = rating
	}
	in = security.SanitizeReview(h.sanitizer, in)
	return in.Validate()
}

func returnPath(bookID string) string {
	if bookID == "" {
		return "/"
	}
	return bookPath(bookID)
}
