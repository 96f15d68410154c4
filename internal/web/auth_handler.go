package web

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/bookreview/internal/guard"
	"github.com/hitoshi/bookreview/internal/model"
)

type loginView struct {
	Email string
}

type registerView struct {
	Name  string
	Email string
}

// LoginPage はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if guard.Decide(h.sessions.Snapshot()) == guard.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, pageLogin, pageData{Title: "Sign in", Data: loginView{}})
}

// Login はログインを処理する。成功時は一覧へ遷移する。
// 失敗時はサーバーのメッセージをフォームと共に表示する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds := model.Credentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	view := loginView{Email: creds.Email}

	creds, err := creds.Validate()
	if err != nil {
		h.renderLogin(w, r, view, h.toAPIError(r, err))
		return
	}

	if _, err := h.sessions.Login(r.Context(), creds); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderLogin(w, r, view, apiErr)
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, view loginView, apiErr *model.APIError) {
	h.render(w, r, statusForError(apiErr), pageLogin, pageData{
		Title: "Sign in",
		Error: apiErr,
		Data:  view,
	})
}

// RegisterPage は新規登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if guard.Decide(h.sessions.Snapshot()) == guard.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, pageRegister, pageData{Title: "Register", Data: registerView{}})
}

// Register は新規登録を処理する。契約はLoginと同じ。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in := model.RegisterInput{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	view := registerView{Name: in.Name, Email: in.Email}

	in, err := in.Validate()
	if err != nil {
		h.renderRegister(w, r, view, h.toAPIError(r, err))
		return
	}

	if _, err := h.sessions.Register(r.Context(), in); err != nil {
		h.fail(w, r, err, func(apiErr *model.APIError) {
			h.renderRegister(w, r, view, apiErr)
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, view registerView, apiErr *model.APIError) {
	h.render(w, r, statusForError(apiErr), pageRegister, pageData{
		Title: "Register",
		Error: apiErr,
		Data:  view,
	})
}

// Logout はセッションを破棄してトップページへ遷移する。
// 未ログイン時も同じ結果になる。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	h.logger.Debug("logout requested", slog.String("path", r.URL.Path))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
