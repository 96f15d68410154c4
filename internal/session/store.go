// Package session はプロセス全体で共有する認証セッションを管理する。
// 永続化されたトークンの復元（bootstrap）、ログイン・新規登録・ログアウト、
// 401応答によるセッション破棄を扱う。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/bookreview/internal/model"
)

// Authenticator は認証APIのインターフェース。apiclient.Clientが実装する。
type Authenticator interface {
	Login(ctx context.Context, creds model.Credentials) (*model.AuthResult, error)
	Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error)
	Me(ctx context.Context) (*model.User, error)
}

// MetricsRecorder はセッション関連のメトリクスの記録先。
type MetricsRecorder interface {
	RecordAuthAttempt(operation string, success bool)
	RecordSessionTeardown()
}

// State はセッションのスナップショット。
// IsAuthenticatedは常に User != nil && Token != "" と一致する。
// Generationはログイン・新規登録・復元・ログアウト・破棄のたびに増加する。
type State struct {
	User            *model.User
	Token           string
	IsAuthenticated bool
	Loading         bool
	Generation      uint64
}

// Store はセッションの状態を保持する。
// 状態はmuで保護し、オブザーバーはロック解放後に同期的に呼び出す。
type Store struct {
	mu    sync.Mutex
	state State

	// persistMu はストレージへの書き込みと状態更新の組を直列化する。
	persistMu sync.Mutex

	storage Storage
	auth    Authenticator
	metrics MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time

	bootstrapOnce sync.Once
	done          chan struct{}

	observers    map[int]func(State)
	nextObserver int
}

// StoreOption はStoreの任意設定。
type StoreOption func(*Store)

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithClock は現在時刻の取得関数を設定する。テスト用。
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore はStoreを生成する。初期状態はLoading。
// authはSetAuthenticatorで後から設定できる（APIクライアントがStoreをTokenSourceとして参照するため）。
func NewStore(storage Storage, auth Authenticator, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		state:     State{Loading: true},
		storage:   storage,
		auth:      auth,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
		observers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAuthenticator は認証APIを設定する。Bootstrap前に呼び出すこと。
func (s *Store) SetAuthenticator(auth Authenticator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
}

func (s *Store) authenticator() Authenticator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.copy()
}

// Token は現在のトークンと世代を返す。apiclient.TokenSourceを実装する。
func (s *Store) Token() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token, s.state.Generation
}

// Generation は現在の世代を返す。
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Generation
}

// IsCurrent は世代が現在のものかどうかを返す。
func (s *Store) IsCurrent(generation uint64) bool {
	return s.Generation() == generation
}

// Done はbootstrapが完了すると閉じられるチャネルを返す。
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Subscribe は状態変更のオブザーバーを登録し、登録解除関数を返す。
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// update は状態を変更し、変更があればオブザーバーへ通知する。
// fnがfalseを返した場合は変更なしとして扱う。
func (s *Store) update(fn func(st *State) bool) (State, bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		snap := s.state.copy()
		s.mu.Unlock()
		return snap, false
	}
	snap := s.state.copy()
	observers := make([]func(State), 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
	return snap, true
}

// Bootstrap は永続化されたセッションを復元する。プロセスごとに一度だけ実行され、
// 2回目以降の呼び出しは何もしない。完了時（成功・失敗・セッションなし）にLoadingをfalseにする。
// エラーを返すのはストレージの読み込みに失敗した場合のみ。
func (s *Store) Bootstrap(ctx context.Context) error {
	var err error
	s.bootstrapOnce.Do(func() {
		defer s.settle()
		err = s.bootstrap(ctx)
	})
	return err
}

func (s *Store) bootstrap(ctx context.Context) error {
	auth := s.authenticator()
	if auth == nil {
		return fmt.Errorf("authenticator is not configured")
	}

	start := s.Generation()
	token, user, err := s.storage.Load(ctx)
	if err != nil {
		s.discardPersisted(ctx, start)
		return fmt.Errorf("failed to load persisted session: %w", err)
	}

	if token == "" || user == nil {
		if token != "" || user != nil {
			s.logger.Warn("incomplete persisted session, clearing")
			s.discardPersisted(ctx, start)
		} else {
			s.logger.Info("no persisted session")
		}
		return nil
	}

	if TokenExpired(token, s.now()) {
		s.logger.Info("persisted token has expired, clearing")
		s.discardPersisted(ctx, start)
		return nil
	}

	// 楽観的に認証済みとし、"me" でトークンを検証する
	restored, ok := s.update(func(st *State) bool {
		if st.Generation != start {
			return false
		}
		st.User = user
		st.Token = token
		st.IsAuthenticated = true
		st.Generation++
		return true
	})
	if !ok {
		s.logger.Debug("session changed during restore, skipping persisted session")
		return nil
	}

	me, err := auth.Me(ctx)
	if err != nil {
		if s.teardown(ctx, restored.Generation) {
			s.logger.Warn("persisted session rejected",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	_, applied := s.update(func(st *State) bool {
		if st.Generation != restored.Generation {
			return false
		}
		st.User = me
		return true
	})
	if !applied {
		s.logger.Debug("discarding stale session validation result",
			slog.Uint64("generation", restored.Generation),
		)
		return nil
	}
	if err := s.storage.Save(ctx, token, me); err != nil {
		s.logger.Warn("failed to persist refreshed user", slog.String("error", err.Error()))
	}
	s.logger.Info("session restored", slog.String("user_id", me.ID))
	return nil
}

// settle はLoadingを解除し、Doneチャネルを閉じる。
func (s *Store) settle() {
	s.update(func(st *State) bool {
		st.Loading = false
		return true
	})
	close(s.done)
}

// Login はログインし、成功時にトークンとユーザーを永続化して認証済みにする。
// 失敗時は既存の状態を変更せず、APIのエラーをそのまま返す。
func (s *Store) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	auth := s.authenticator()
	if auth == nil {
		return nil, fmt.Errorf("authenticator is not configured")
	}

	res, err := auth.Login(ctx, creds)
	s.recordAuthAttempt("login", err == nil)
	if err != nil {
		return nil, err
	}

	s.commit(ctx, res)
	s.logger.Info("user logged in", slog.String("user_id", res.User.ID))
	return res.User, nil
}

// Register は新規登録し、Loginと同じ契約でセッションを確立する。
func (s *Store) Register(ctx context.Context, in model.RegisterInput) (*model.User, error) {
	auth := s.authenticator()
	if auth == nil {
		return nil, fmt.Errorf("authenticator is not configured")
	}

	res, err := auth.Register(ctx, in)
	s.recordAuthAttempt("register", err == nil)
	if err != nil {
		return nil, err
	}

	s.commit(ctx, res)
	s.logger.Info("user registered", slog.String("user_id", res.User.ID))
	return res.User, nil
}

// commit は認証結果を永続化し、状態に反映する。
// 永続化に失敗してもこのプロセス内では認証済みとして扱う。
func (s *Store) commit(ctx context.Context, res *model.AuthResult) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.storage.Save(ctx, res.Token, res.User); err != nil {
		s.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}

	s.update(func(st *State) bool {
		st.User = res.User
		st.Token = res.Token
		st.IsAuthenticated = true
		st.Generation++
		return true
	})
}

// Logout は永続化されたセッションと状態を消去する。
// 冪等であり、ストレージの失敗はログに記録するのみでエラーを返さない。
func (s *Store) Logout(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.clearStorage(ctx)
	prev := s.Snapshot()
	s.update(func(st *State) bool {
		clearState(st)
		return true
	})

	if prev.IsAuthenticated {
		s.logger.Info("user logged out", slog.String("user_id", prev.User.ID))
	}
}

// teardown は世代が現在のものであればセッションを破棄し、trueを返す。
// 同じ世代に対する2回目以降の呼び出しは何もしない。
func (s *Store) teardown(ctx context.Context, generation uint64) bool {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	_, cleared := s.update(func(st *State) bool {
		if st.Generation != generation {
			return false
		}
		clearState(st)
		return true
	})
	if !cleared {
		return false
	}
	s.clearStorage(ctx)
	return true
}

// discardPersisted は復元開始後にセッションが変わっていなければ永続化された内容を消去する。
func (s *Store) discardPersisted(ctx context.Context, start uint64) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.Generation() != start {
		return
	}
	s.clearStorage(ctx)
}

func (s *Store) clearStorage(ctx context.Context) {
	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted session", slog.String("error", err.Error()))
	}
}

func (s *Store) recordAuthAttempt(operation string, success bool) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(operation, success)
	}
}

func clearState(st *State) {
	st.User = nil
	st.Token = ""
	st.IsAuthenticated = false
	st.Generation++
}

func (st State) copy() State {
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}
