package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind はAPI呼び出し失敗の分類を表す。
type ErrorKind string

const (
	// KindNetwork はレスポンスを受け取れなかった失敗（接続不可など）。
	KindNetwork ErrorKind = "network"
	// KindAuth は401。セッションの破棄とログイン画面への遷移を伴う。
	KindAuth ErrorKind = "auth"
	// KindValidation はサーバーのメッセージ付き4xx、またはクライアント側の入力検証エラー。
	KindValidation ErrorKind = "validation"
	// KindNotFound は404。
	KindNotFound ErrorKind = "not_found"
	// KindServer は5xx、または解釈できないレスポンス。
	KindServer ErrorKind = "server"
)

// APIError はAPI呼び出し失敗の統一フォーマットを表す。
// Statusはレスポンスを受け取れなかった場合は0。
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string          // ユーザーに表示するメッセージ（サーバー提供のものを優先）
	Raw     json.RawMessage // レスポンスボディ（JSONの場合のみ）
	Err     error           // 下位のエラー（ネットワークエラーなど）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("[%s %d] %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap は下位のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// Action はユーザー向けの対処方法を返す。
func (e *APIError) Action() string {
	switch e.Kind {
	case KindNetwork:
		return "Check your connection and that the API server is running, then try again."
	case KindAuth:
		return "Please sign in again."
	case KindValidation:
		return "Check the entered values and try again."
	case KindNotFound:
		return "It may have been deleted. Go back to the list and refresh."
	default:
		return "Please wait a moment and try again."
	}
}

// IsKind はエラーが指定された分類のAPIErrorかどうかを返す。
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// KindForStatus はHTTPステータスコードから分類を決める。
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	default:
		return KindServer
	}
}

// NewResponseError はエラーレスポンスからAPIErrorを生成する。
// ボディが {"message": "..."} または {"error": "..."} の場合はそのメッセージを使用する。
func NewResponseError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Kind:   KindForStatus(status),
		Status: status,
	}

	trimmed := strings.TrimSpace(string(body))
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		apiErr.Raw = json.RawMessage(trimmed)
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
			Errors  []struct {
				Msg     string `json:"msg"`
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			apiErr.Message = firstNonEmpty(payload.Message, payload.Error)
			if apiErr.Message == "" && len(payload.Errors) > 0 {
				apiErr.Message = firstNonEmpty(payload.Errors[0].Msg, payload.Errors[0].Message)
			}
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = defaultMessage(status)
	}
	return apiErr
}

// NewNetworkError はレスポンスを受け取れなかった場合のAPIErrorを生成する。
func NewNetworkError(err error) *APIError {
	return &APIError{
		Kind:    KindNetwork,
		Message: "Could not reach the server.",
		Err:     err,
	}
}

// NewRequestError は送信前にリクエストを組み立てられなかった場合のAPIErrorを生成する。
func NewRequestError(err error) *APIError {
	return &APIError{
		Kind:    KindServer,
		Message: "The request could not be prepared.",
		Err:     err,
	}
}

// NewDecodeError はレスポンスボディを解釈できなかった場合のAPIErrorを生成する。
func NewDecodeError(status int, err error) *APIError {
	return &APIError{
		Kind:    KindServer,
		Status:  status,
		Message: "The server returned an unexpected response.",
		Err:     err,
	}
}

// NewValidationError はクライアント側の入力検証エラーを生成する。
// リクエストは送信されないためStatusは0。
func NewValidationError(message string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Message: message,
	}
}

// defaultMessage はサーバーがメッセージを返さなかった場合の既定メッセージ。
func defaultMessage(status int) string {
	switch KindForStatus(status) {
	case KindAuth:
		return "Your session has expired. Please sign in again."
	case KindNotFound:
		return "The requested item was not found."
	case KindServer:
		return "The server encountered an error."
	default:
		if text := http.StatusText(status); text != "" {
			return text
		}
		return "The request was rejected."
	}
}
