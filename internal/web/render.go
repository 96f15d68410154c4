package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/bookreview/internal/guard"
	"github.com/hitoshi/bookreview/internal/middleware"
	"github.com/hitoshi/bookreview/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページテンプレート名。templates/<name>.html に対応する。
const (
	pageLoading  = "loading"
	pageLanding  = "landing"
	pageLogin    = "login"
	pageRegister = "register"
	pageBooks    = "books"
	pageBook     = "book"
	pageBookForm = "book_form"
	pageProfile  = "profile"
	pageError    = "error"
)

var pageNames = []string{
	pageLoading, pageLanding, pageLogin, pageRegister,
	pageBooks, pageBook, pageBookForm, pageProfile, pageError,
}

var templateFuncs = template.FuncMap{
	"stars": func(n int) string {
		n = max(0, min(n, model.MaxRating))
		return strings.Repeat("★", n) + strings.Repeat("☆", model.MaxRating-n)
	},
	"roundRating": func(avg float64) int {
		return int(math.Round(avg))
	},
	"ratings": func() []int {
		out := make([]int, 0, model.MaxRating)
		for i := model.MinRating; i <= model.MaxRating; i++ {
			out = append(out, i)
		}
		return out
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"ownsBook": func(b model.Book, u *model.User) bool {
		return b.OwnedBy(u)
	},
	"wroteReview": func(r model.Review, u *model.User) bool {
		return r.WrittenBy(u)
	},
}

// pageData はレイアウトに渡す共通データ。ページ固有のデータはDataに入れる。
type pageData struct {
	Title     string
	User      *model.User
	CSRFToken string
	Error     *model.APIError
	Loading   bool
	Refresh   int
	Data      any
}

// views はページごとにレイアウトと組み合わせてパースしたテンプレートを保持する。
type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// base は各ハンドラーが共有する描画とエラー処理の機能。
type base struct {
	sessions SessionService
	views    *views
	logger   *slog.Logger
}

// currentUser はリクエスト時点のログインユーザーを返す。
// ガードを通過したリクエストではガードが判定に使ったスナップショットを優先する。
func (b *base) currentUser(r *http.Request) *model.User {
	if st, ok := guard.SessionFromContext(r.Context()); ok {
		return st.User
	}
	if st := b.sessions.Snapshot(); st.IsAuthenticated {
		return st.User
	}
	return nil
}

// render はページを描画する。テンプレートの実行はバッファ上で行い、
// 失敗した場合は書きかけのHTMLを返さずに500ページを返す。
func (b *base) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := b.views.pages[page]
	if !ok {
		b.logger.Error("unknown page template", slog.String("page", page))
		middleware.WriteInternalServerError(w)
		return
	}

	if data.User == nil && !data.Loading {
		data.User = b.currentUser(r)
	}
	data.CSRFToken = middleware.CSRFToken(r.Context())

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		b.logger.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// loading はbootstrap中に表示するプレースホルダーページ。
func (b *base) loading(w http.ResponseWriter, r *http.Request) {
	b.render(w, r, http.StatusOK, pageLoading, pageData{
		Title:   "Loading",
		Loading: true,
		Refresh: 1,
	})
}

// fail はAPI呼び出しの失敗を処理する。
// このリクエスト中にセッションが破棄された場合はログイン画面へ遷移し、
// それ以外はinlineでエラーを表示する。ログイン画面自身ではinline表示を優先する。
func (b *base) fail(w http.ResponseWriter, r *http.Request, err error, inline func(apiErr *model.APIError)) {
	if loginRequested(r.Context()) && r.URL.Path != loginPath {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}
	inline(b.toAPIError(r, err))
}

// toAPIError はエラーを表示用の*model.APIErrorに変換する。
// APIErrorでないエラーは詳細をログのみに記録する。
func (b *base) toAPIError(r *http.Request, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	b.logger.Error("unexpected error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	return &model.APIError{
		Kind:    model.KindServer,
		Message: "Something went wrong. Please try again.",
		Err:     err,
	}
}

// statusForError はエラーの種類に対応するレスポンスステータスを返す。
func statusForError(apiErr *model.APIError) int {
	switch apiErr.Kind {
	case model.KindValidation:
		if apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError {
			return apiErr.Status
		}
		return http.StatusBadRequest
	case model.KindAuth:
		return http.StatusUnauthorized
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
