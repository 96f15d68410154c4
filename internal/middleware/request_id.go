package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/hitoshi/bookreview/internal/apiclient"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLength は受け入れるX-Request-IDの最大長。超える場合は新規に生成する。
const maxRequestIDLength = 128

// NewRequestIDMiddleware はリクエストIDを採番し、コンテキストとレスポンスヘッダーに設定する。
// 同じIDがAPIクライアント経由でREST APIへのリクエストにも付与される。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.New().String()
			}

			w.Header().Set(requestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDContextKey, id)
			ctx = apiclient.WithRequestID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext はリクエストIDを返す。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
