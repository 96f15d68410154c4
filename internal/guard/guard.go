// Package guard は保護されたページへのアクセスをセッション状態で制御する。
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/bookreview/internal/middleware"
	"github.com/hitoshi/bookreview/internal/model"
	"github.com/hitoshi/bookreview/internal/session"
)

// State はルートガードの状態。
type State int

const (
	// Loading はbootstrap中。プレースホルダーを表示し、遷移しない。
	Loading State = iota
	// Authenticated は保護されたページを表示する。
	Authenticated
	// Unauthenticated はログイン画面へリダイレクトする。
	Unauthenticated
)

// String はメトリクスとログに使う状態名を返す。
func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Decide はセッションの状態からガードの状態を決める。
func Decide(st session.State) State {
	switch {
	case st.Loading:
		return Loading
	case st.IsAuthenticated:
		return Authenticated
	default:
		return Unauthenticated
	}
}

// SessionSource はセッションのスナップショットを提供する。
type SessionSource interface {
	Snapshot() session.State
}

// MetricsRecorder はガードの判定の記録先。
type MetricsRecorder interface {
	RecordGuardDecision(decision string)
}

// Guard は保護されたルートのミドルウェアを提供する。
type Guard struct {
	sessions  SessionSource
	loginPath string
	loading   http.Handler
	metrics   MetricsRecorder
	logger    *slog.Logger

	settleOnce sync.Once
}

// Option はGuardの任意設定。
type Option func(*Guard)

// WithLoginPath はリダイレクト先を設定する。デフォルトは "/login"。
func WithLoginPath(path string) Option {
	return func(g *Guard) { g.loginPath = path }
}

// WithLoadingHandler はbootstrap中に表示するページを設定する。
func WithLoadingHandler(h http.Handler) Option {
	return func(g *Guard) { g.loading = h }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(g *Guard) { g.metrics = m }
}

// New はGuardを生成する。
func New(sessions SessionSource, logger *slog.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{
		sessions:  sessions,
		loginPath: "/login",
		loading:   http.HandlerFunc(DefaultLoading),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware はセッション状態に応じてリクエストを振り分ける。
// 認証済みの場合は判定に使ったスナップショットをコンテキストに格納してnextへ渡す。
// 復元中のフォーム送信（GET以外）にはプレースホルダーではなく503を返す。
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := g.sessions.Snapshot()
		decision := Decide(st)
		g.observe(decision)

		switch decision {
		case Loading:
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Cache-Control", "no-store")
			if !isSafeMethod(r.Method) {
				// プレースホルダーの再読み込みはGETになり送信内容が失われるため、再送を促す
				middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, errStillLoading)
				return
			}
			g.loading.ServeHTTP(w, r)
		case Authenticated:
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), st)))
		default:
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		}
	})
}

// errStillLoading は復元中に届いたフォーム送信への応答。
var errStillLoading = &model.APIError{
	Kind:    model.KindServer,
	Status:  http.StatusServiceUnavailable,
	Message: "Your session is still loading. Go back and submit the form again in a moment.",
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func (g *Guard) observe(decision State) {
	if g.metrics != nil {
		g.metrics.RecordGuardDecision(decision.String())
	}
	if decision == Loading {
		return
	}
	g.settleOnce.Do(func() {
		g.logger.Info("route guard settled", slog.String("state", decision.String()))
	})
}

// DefaultLoading は最小限の読み込み中ページを返す。
func DefaultLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html><html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><p>Loading...</p></body></html>`))
}

type sessionKey struct{}

// WithSession はセッションのスナップショットをコンテキストに格納する。
func WithSession(ctx context.Context, st session.State) context.Context {
	return context.WithValue(ctx, sessionKey{}, st)
}

// SessionFromContext はガードを通過したリクエストのスナップショットを返す。
func SessionFromContext(ctx context.Context) (session.State, bool) {
	st, ok := ctx.Value(sessionKey{}).(session.State)
	return st, ok
}
