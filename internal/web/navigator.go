package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
)

const loginPath = "/login"

// navigation はページリクエストごとの遷移要求を保持する。
type navigation struct {
	toLogin atomic.Bool
}

type navigationKey struct{}

// TrackNavigation はリクエストのコンテキストに遷移要求の受け皿を用意する。
// APIクライアントはページリクエストのコンテキストで未認証シグナルを発火するため、
// Navigatorはこの受け皿を通じてハンドラーへ遷移を伝える。
func TrackNavigation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), navigationKey{}, &navigation{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loginRequested(ctx context.Context) bool {
	nav, ok := ctx.Value(navigationKey{}).(*navigation)
	return ok && nav.toLogin.Load()
}

// Navigator はsession.Navigatorの実装。
// 遷移そのものはリクエストを処理中のハンドラーが303リダイレクトとして行う。
type Navigator struct {
	logger *slog.Logger
}

// NewNavigator はNavigatorを生成する。
func NewNavigator(logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{logger: logger}
}

// ToLogin は現在のページリクエストにログイン画面への遷移を要求する。
// ページリクエスト外（起動時の復元など）では、次に保護されたページを開いた時点で
// ガードがログイン画面へ誘導する。
func (n *Navigator) ToLogin(ctx context.Context) {
	nav, ok := ctx.Value(navigationKey{}).(*navigation)
	if !ok {
		n.logger.Info("session ended outside a page request")
		return
	}
	nav.toLogin.Store(true)
}
