// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/bookreview/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// requestIDContextKey はリクエストコンテキストにリクエストIDを格納するためのキー。
	requestIDContextKey = contextKey("request_id")
	// csrfTokenContextKey はフォームに埋め込むCSRFトークンを格納するためのキー。
	csrfTokenContextKey = contextKey("csrf_token")
)

// SessionSource はセッションのスナップショットを提供する。
// session.Storeの部分集合として定義する。
type SessionSource interface {
	Snapshot() session.State
}

// NewSessionMiddleware は認証済みの場合にユーザーIDをリクエストコンテキストに注入する。
// 未認証のリクエストもそのまま通す。保護されたページの判定はguardパッケージが行う。
func NewSessionMiddleware(sessions SessionSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := sessions.Snapshot()
			if st.IsAuthenticated && st.User != nil {
				r = r.WithContext(ContextWithUserID(r.Context(), st.User.ID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
