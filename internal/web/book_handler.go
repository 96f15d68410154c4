package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookreview/internal/guard"
	"github.com/hitoshi/bookreview/internal/model"
	"github.com/hitoshi/bookreview/internal/security"
)

type landingView struct {
	DemoEmail    string
	DemoPassword string
}

type booksView struct {
	Query       model.BookQuery
	Books       []model.Book
	Pagination  model.Pagination
	Genres      []string
	SortOptions []struct {
		Value string
		Label string
	}
	PrevURL string
	NextURL string
}

// bookView は書籍詳細ページのデータ。Bookがnilの場合は書籍部分を表示しない。
type bookView struct {
	Book    *model.Book
	Reviews []model.Review
	CanEdit bool
	Form    model.ReviewInput
}

type bookFormView struct {
	BookID    string
	Action    string
	CancelURL string
	Input     model.BookInput
	Genres    []string
	MinYear   int
	MaxYear   int
}

// Index はトップページを表示する。
// ログイン済みの場合は書籍一覧、未ログインの場合はランディングページ、復元中は読み込み中ページ。
// GET /
func (h *BookHandler) Index(w http.ResponseWriter, r *http.Request) {
	switch guard.Decide(h.sessions.Snapshot()) {
	case guard.Loading:
		w.Header().Set("Retry-After", "1")
		h.loading(w, r)
	case guard.Unauthenticated:
		h.render(w, r, http.StatusOK, pageLanding, pageData{
			Title: "Welcome",
			Data:  landingView{DemoEmail: demoEmail, DemoPassword: demoPassword},
		})
	default:
		h.listBooks(w, r)
	}
}

func (h *BookHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	q := parseBookQuery(r.URL.Query())
	view := booksView{
		Query:       q,
		Genres:      model.Genres,
		SortOptions: model.SortOptions,
	}

	list, err := h.books.ListBooks(r.Context(), q)
	if err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.render(w, r, statusForError(apiErr), pageBooks, pageData{Title: "Books", Error: apiErr, Data: view})
		})
		return
	}

	view.Books = list.Books
	view.Pagination = list.Pagination
	if list.Pagination.HasPrev {
		view.PrevURL = pageURL(q, q.Page-1)
	}
	if list.Pagination.HasNext {
		view.NextURL = pageURL(q, q.Page+1)
	}
	h.render(w, r, http.StatusOK, pageBooks, pageData{Title: "Books", Data: view})
}

// Details は書籍詳細とレビューを表示する。書籍が存在しない場合は一覧へ遷移する。
// GET /book/{id}
func (h *BookHandler) Details(w http.ResponseWriter, r *http.Request) {
	h.renderDetails(w, r, chi.URLParam(r, "id"), http.StatusOK, nil, model.ReviewInput{})
}

// renderDetails はサーバーから書籍とレビューを取得し直して詳細ページを描画する。
// 操作の失敗時もこの関数で描画するため、表示内容は常にサーバーの状態を反映する。
func (h *BookHandler) renderDetails(w http.ResponseWriter, r *http.Request, id string, status int, actionErr *model.APIError, form model.ReviewInput) {
	book, err := h.books.GetBook(r.Context(), id)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) && !loginRequested(r.Context()) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.render(w, r, statusForError(apiErr), pageBook, pageData{Title: "Book", Error: apiErr, Data: bookView{}})
		})
		return
	}

	view := bookView{
		Book:    book,
		CanEdit: book.OwnedBy(h.currentUser(r)),
		Form:    form,
	}

	reviews, err := h.reviews.ListBookReviews(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			if actionErr == nil {
				actionErr, status = apiErr, statusForError(apiErr)
			}
			h.render(w, r, status, pageBook, pageData{Title: book.Title, Error: actionErr, Data: view})
		})
		return
	}
	view.Reviews = reviews

	h.render(w, r, status, pageBook, pageData{Title: book.Title, Error: actionErr, Data: view})
}

// NewForm は書籍登録フォームを表示する。
// GET /add-book
func (h *BookHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "", model.BookInput{}, nil)
}

// Create は書籍を登録する。入力はサニタイズと検証を通過した場合のみ送信する。
// POST /add-book
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := h.bookInput(r)
	if err != nil {
		apiErr := h.toAPIError(r, err)
		h.renderForm(w, r, statusForError(apiErr), "", in, apiErr)
		return
	}

	if _, err := h.books.CreateBook(r.Context(), in); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderForm(w, r, statusForError(apiErr), "", in, apiErr)
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// EditForm は書籍編集フォームを既存の値で表示する。
// 書籍が存在しない場合は一覧へ、登録者以外は詳細ページへ遷移する。
// GET /edit-book/{id}
func (h *BookHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, err := h.books.GetBook(r.Context(), id)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) && !loginRequested(r.Context()) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.render(w, r, statusForError(apiErr), pageError, pageData{Title: "Edit Book", Error: apiErr})
		})
		return
	}
	if !book.OwnedBy(h.currentUser(r)) {
		http.Redirect(w, r, bookPath(id), http.StatusSeeOther)
		return
	}

	h.renderForm(w, r, http.StatusOK, id, model.BookInputFrom(book), nil)
}

// Update は書籍を更新する。
// POST /edit-book/{id}
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	in, err := h.bookInput(r)
	if err != nil {
		apiErr := h.toAPIError(r, err)
		h.renderForm(w, r, statusForError(apiErr), id, in, apiErr)
		return
	}

	if _, err := h.books.UpdateBook(r.Context(), id, in); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderForm(w, r, statusForError(apiErr), id, in, apiErr)
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Delete は書籍を削除して一覧へ遷移する。失敗時は詳細ページにエラーを表示する。
// POST /book/{id}/delete
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.books.DeleteBook(r.Context(), id); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderDetails(w, r, id, statusForError(apiErr), apiErr, model.ReviewInput{})
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *BookHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, id string, in model.BookInput, apiErr *model.APIError) {
	view := bookFormView{
		BookID:    id,
		Action:    "/add-book",
		CancelURL: "/",
		Input:     in,
		Genres:    model.Genres,
		MinYear:   model.MinYear,
		MaxYear:   model.MaxYear(h.now()),
	}
	title := "Add Book"
	if id != "" {
		view.Action = "/edit-book/" + url.PathEscape(id)
		view.CancelURL = bookPath(id)
		title = "Edit Book"
	}
	h.render(w, r, status, pageBookForm, pageData{Title: title, Error: apiErr, Data: view})
}

// bookInput はフォームから書籍入力を読み取り、サニタイズと検証を行う。
// 検証に失敗した場合も再表示用に読み取った値を返す。
func (h *BookHandler) bookInput(r *http.Request) (model.BookInput, error) {
	in := model.BookInput{
		Title:       r.PostFormValue("title"),
		Author:      r.PostFormValue("author"),
		Description: r.PostFormValue("description"),
		Genre:       r.PostFormValue("genre"),
	}
	year, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("year")))
	if err == nil {
		in.Year = year
	}

	in = security.SanitizeBook(h.sanitizer, in)
	return in.Validate(h.now())
}

// parseBookQuery は一覧のクエリパラメータを検索条件に変換する。
func parseBookQuery(v url.Values) model.BookQuery {
	q := model.DefaultBookQuery()
	if p, err := strconv.Atoi(v.Get("page")); err == nil {
		q.Page = p
	}
	q.Search = strings.TrimSpace(v.Get("search"))
	q.Genre = v.Get("genre")
	if s := v.Get("sortBy"); s != "" {
		q.SortBy = s
	}
	if s := v.Get("sortOrder"); s != "" {
		q.SortOrder = s
	}
	return q.Normalize()
}

// pageURL は検索条件を保ったまま指定ページの一覧URLを返す。
func pageURL(q model.BookQuery, page int) string {
	q.Page = page
	return "/?" + q.Values().Encode()
}

func bookPath(id string) string {
	return "/book/" + url.PathEscape(id)
}
