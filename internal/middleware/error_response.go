package middleware

import (
	"html/template"
	"net/http"

	"github.com/hitoshi/bookreview/internal/model"
)

// errorPage はミドルウェアが直接返すエラーページ。
// ページ本体のテンプレートを通らない応答（CSRF拒否、レート制限、panic）で使用する。
var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<p>{{.Action}}</p>
<p><a href="/">Back to books</a></p>
</body>
</html>
`))

// WriteErrorResponse はエラーページを書き込む。メッセージと対処方法を含む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	errorPage.Execute(w, struct {
		Title   string
		Message string
		Action  string
	}{
		Title:   http.StatusText(statusCode),
		Message: apiErr.Message,
		Action:  apiErr.Action(),
	})
}

// WriteInternalServerError は内部サーバーエラーのページを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Kind:    model.KindServer,
		Status:  http.StatusInternalServerError,
		Message: "Something went wrong while rendering this page.",
	})
}
