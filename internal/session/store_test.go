package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/bookreview/internal/model"
)

// --- モック定義 ---

type mockAuthenticator struct {
	loginFn    func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error)
	registerFn func(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error)
	meFn       func(ctx context.Context) (*model.User, error)

	mu      sync.Mutex
	meCalls int
}

func (m *mockAuthenticator) Login(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, creds)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthenticator) Register(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthenticator) Me(ctx context.Context) (*model.User, error) {
	m.mu.Lock()
	m.meCalls++
	m.mu.Unlock()
	if m.meFn != nil {
		return m.meFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthenticator) MeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meCalls
}

// memStorage はテスト用のインメモリStorage。
type memStorage struct {
	mu       sync.Mutex
	token    string
	user     *model.User
	loadErr  error
	saveErr  error
	clearErr error
	saves    int
	clears   int
}

func (s *memStorage) Load(_ context.Context) (string, *model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return "", nil, s.loadErr
	}
	return s.token, s.user, nil
}

func (s *memStorage) Save(_ context.Context, token string, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.token = token
	s.user = user
	return nil
}

func (s *memStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.token = ""
	s.user = nil
	return nil
}

func (s *memStorage) snapshot() (string, *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.user
}

type mockMetrics struct {
	mu        sync.Mutex
	attempts  map[string]int
	teardowns int
}

func (m *mockMetrics) RecordAuthAttempt(operation string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	key := operation + ":failure"
	if success {
		key = operation + ":success"
	}
	m.attempts[key]++
}

func (m *mockMetrics) RecordSessionTeardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardowns++
}

func newTestStore(storage Storage, auth Authenticator, opts ...StoreOption) *Store {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewStore(storage, auth, logger, opts...)
}

var demoUser = &model.User{ID: "u1", Name: "Demo", Email: "abcd@gmail.com"}

func assertAnonymous(t *testing.T, st State) {
	t.Helper()
	if st.IsAuthenticated {
		t.Error("IsAuthenticated = true, want false")
	}
	if st.User != nil {
		t.Errorf("User = %+v, want nil", st.User)
	}
	if st.Token != "" {
		t.Errorf("Token = %q, want empty", st.Token)
	}
}

// --- Bootstrap ---

func TestStore_InitialState_IsLoading(t *testing.T) {
	s := newTestStore(&memStorage{}, &mockAuthenticator{})

	st := s.Snapshot()
	if !st.Loading {
		t.Error("Loading = false before bootstrap, want true")
	}
	assertAnonymous(t, st)

	select {
	case <-s.Done():
		t.Error("Done is closed before bootstrap")
	default:
	}
}

func TestStore_Bootstrap_NoToken_SettlesAnonymousWithoutMeCall(t *testing.T) {
	auth := &mockAuthenticator{}
	s := newTestStore(&memStorage{}, auth)

	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}

	st := s.Snapshot()
	assertAnonymous(t, st)
	if st.Loading {
		t.Error("Loading = true after bootstrap, want false")
	}
	if auth.MeCalls() != 0 {
		t.Errorf("Me was called %d times, want 0", auth.MeCalls())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done is not closed after bootstrap")
	}
}

func TestStore_Bootstrap_ValidToken_RestoresServerUser(t *testing.T) {
	storage := &memStorage{token: "t1", user: &model.User{ID: "u1", Name: "Old Name"}}
	auth := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) {
			return demoUser, nil
		},
	}
	s := newTestStore(storage, auth)

	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}

	st := s.Snapshot()
	if !st.IsAuthenticated || st.Token != "t1" {
		t.Errorf("state = %+v, want authenticated with t1", st)
	}
	if st.User == nil || st.User.Name != "Demo" {
		t.Errorf("User = %+v, want server record", st.User)
	}
	if st.Loading {
		t.Error("Loading = true after bootstrap")
	}
	if _, u := storage.snapshot(); u == nil || u.Name != "Demo" {
		t.Errorf("persisted user = %+v, want refreshed record", u)
	}
}

func TestStore_Bootstrap_OptimisticallyAuthenticatedDuringCheck(t *testing.T) {
	storage := &memStorage{token: "t1", user: demoUser}
	var during State
	var s *Store
	auth := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) {
			during = s.Snapshot()
			return demoUser, nil
		},
	}
	s = newTestStore(storage, auth)

	s.Bootstrap(context.Background())

	if !during.IsAuthenticated || !during.Loading {
		t.Errorf("state during check = %+v, want authenticated and loading", during)
	}
}

func TestStore_Bootstrap_RejectedToken_ClearsStateAndStorage(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unauthorized", model.NewResponseError(401, []byte(`{"message":"Token is not valid"}`))},
		{"network", model.NewNetworkError(errors.New("connection refused"))},
		{"server", model.NewResponseError(500, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &memStorage{token: "bad", user: demoUser}
			auth := &mockAuthenticator{
				meFn: func(ctx context.Context) (*model.User, error) {
					return nil, tt.err
				},
			}
			s := newTestStore(storage, auth)

			if err := s.Bootstrap(context.Background()); err != nil {
				t.Fatalf("Bootstrap returned error: %v", err)
			}

			st := s.Snapshot()
			assertAnonymous(t, st)
			if st.Loading {
				t.Error("Loading = true after bootstrap")
			}
			if token, user := storage.snapshot(); token != "" || user != nil {
				t.Errorf("storage = (%q, %+v), want cleared", token, user)
			}
		})
	}
}

func TestStore_Bootstrap_IncompleteSession_ClearsRemnant(t *testing.T) {
	storage := &memStorage{token: "t1"}
	auth := &mockAuthenticator{}
	s := newTestStore(storage, auth)

	s.Bootstrap(context.Background())

	assertAnonymous(t, s.Snapshot())
	if auth.MeCalls() != 0 {
		t.Errorf("Me was called %d times, want 0", auth.MeCalls())
	}
	if storage.clears != 1 {
		t.Errorf("storage cleared %d times, want 1", storage.clears)
	}
}

func TestStore_Bootstrap_ExpiredJWT_SkipsMeCall(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := signedToken(t, now.Add(-time.Hour))
	storage := &memStorage{token: token, user: demoUser}
	auth := &mockAuthenticator{}
	s := newTestStore(storage, auth, WithClock(func() time.Time { return now }))

	s.Bootstrap(context.Background())

	assertAnonymous(t, s.Snapshot())
	if auth.MeCalls() != 0 {
		t.Errorf("Me was called %d times, want 0", auth.MeCalls())
	}
	if tok, _ := storage.snapshot(); tok != "" {
		t.Errorf("persisted token = %q, want cleared", tok)
	}
}

func TestStore_Bootstrap_LoadError_SettlesAndReturnsError(t *testing.T) {
	storage := &memStorage{loadErr: errors.New("disk on fire")}
	s := newTestStore(storage, &mockAuthenticator{})

	err := s.Bootstrap(context.Background())
	if err == nil {
		t.Fatal("Bootstrap returned nil, want error")
	}
	if s.Snapshot().Loading {
		t.Error("Loading = true after failed bootstrap")
	}
}

func TestStore_Bootstrap_RunsOnce(t *testing.T) {
	storage := &memStorage{token: "t1", user: demoUser}
	auth := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) { return demoUser, nil },
	}
	s := newTestStore(storage, auth)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Bootstrap(context.Background())
		}()
	}
	wg.Wait()

	if auth.MeCalls() != 1 {
		t.Errorf("Me was called %d times, want 1", auth.MeCalls())
	}
}

func TestStore_Bootstrap_StaleValidationIsDiscarded(t *testing.T) {
	storage := &memStorage{token: "t1", user: demoUser}
	var s *Store
	auth := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) {
			// 検証中にログアウトされた
			s.Logout(ctx)
			return demoUser, nil
		},
	}
	s = newTestStore(storage, auth)

	s.Bootstrap(context.Background())

	assertAnonymous(t, s.Snapshot())
	if tok, _ := storage.snapshot(); tok != "" {
		t.Errorf("persisted token = %q, want cleared", tok)
	}
}

// --- Login / Register ---

func TestStore_Login_Success_PersistsAndAuthenticates(t *testing.T) {
	storage := &memStorage{}
	var got model.Credentials
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			got = creds
			return &model.AuthResult{Token: "t1", User: &model.User{ID: "u1", Name: "Demo"}}, nil
		},
	}
	m := &mockMetrics{}
	s := newTestStore(storage, auth, WithMetrics(m))
	before := s.Generation()

	user, err := s.Login(context.Background(), model.Credentials{Email: "abcd@gmail.com", Password: "12345678"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if got.Email != "abcd@gmail.com" || got.Password != "12345678" {
		t.Errorf("credentials = %+v", got)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", user.ID)
	}
	st := s.Snapshot()
	if !st.IsAuthenticated || st.Token != "t1" || st.User.ID != "u1" {
		t.Errorf("state = %+v, want authenticated with t1/u1", st)
	}
	if st.Generation == before {
		t.Error("generation did not change on login")
	}
	if tok, _ := storage.snapshot(); tok != "t1" {
		t.Errorf("persisted token = %q, want t1", tok)
	}
	if m.attempts["login:success"] != 1 {
		t.Errorf("attempts = %v, want login:success=1", m.attempts)
	}
}

func TestStore_Login_Failure_LeavesPriorStateUntouched(t *testing.T) {
	storage := &memStorage{token: "t0", user: demoUser}
	auth := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) { return demoUser, nil },
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return nil, model.NewResponseError(400, []byte(`{"message":"Invalid credentials"}`))
		},
	}
	m := &mockMetrics{}
	s := newTestStore(storage, auth, WithMetrics(m))
	s.Bootstrap(context.Background())
	before := s.Snapshot()

	_, err := s.Login(context.Background(), model.Credentials{Email: "x@y.z", Password: "nope"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid credentials" {
		t.Fatalf("err = %v, want server message", err)
	}
	after := s.Snapshot()
	if after.Token != before.Token || after.Generation != before.Generation || !after.IsAuthenticated {
		t.Errorf("state changed: before %+v, after %+v", before, after)
	}
	if tok, _ := storage.snapshot(); tok != "t0" {
		t.Errorf("persisted token = %q, want t0", tok)
	}
	if m.attempts["login:failure"] != 1 {
		t.Errorf("attempts = %v, want login:failure=1", m.attempts)
	}
}

func TestStore_Login_StorageFailure_StillAuthenticates(t *testing.T) {
	storage := &memStorage{saveErr: errors.New("read-only")}
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t1", User: demoUser}, nil
		},
	}
	s := newTestStore(storage, auth)

	if _, err := s.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"}); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !s.Snapshot().IsAuthenticated {
		t.Error("IsAuthenticated = false after login")
	}
}

func TestStore_Register_Success(t *testing.T) {
	storage := &memStorage{}
	auth := &mockAuthenticator{
		registerFn: func(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t2", User: &model.User{ID: "u2", Name: in.Name, Email: in.Email}}, nil
		},
	}
	s := newTestStore(storage, auth)

	user, err := s.Register(context.Background(), model.RegisterInput{Name: "New", Email: "new@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if user.Name != "New" {
		t.Errorf("user.Name = %q, want New", user.Name)
	}
	st := s.Snapshot()
	if !st.IsAuthenticated || st.Token != "t2" {
		t.Errorf("state = %+v, want authenticated with t2", st)
	}
}

func TestStore_Register_Failure_LeavesAnonymous(t *testing.T) {
	auth := &mockAuthenticator{
		registerFn: func(ctx context.Context, in model.RegisterInput) (*model.AuthResult, error) {
			return nil, model.NewResponseError(400, []byte(`{"message":"User already exists"}`))
		},
	}
	s := newTestStore(&memStorage{}, auth)

	if _, err := s.Register(context.Background(), model.RegisterInput{Name: "a", Email: "a@b.c", Password: "secret1"}); err == nil {
		t.Fatal("Register returned nil error")
	}
	assertAnonymous(t, s.Snapshot())
}

// --- Logout ---

func TestStore_LoginThenLogout_EndsAnonymous(t *testing.T) {
	storage := &memStorage{}
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t1", User: demoUser}, nil
		},
	}
	s := newTestStore(storage, auth)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Login(ctx, model.Credentials{Email: "abcd@gmail.com", Password: "12345678"}); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		s.Logout(ctx)

		assertAnonymous(t, s.Snapshot())
		if tok, user := storage.snapshot(); tok != "" || user != nil {
			t.Errorf("storage = (%q, %+v), want cleared", tok, user)
		}
	}
}

func TestStore_Logout_WhenAnonymous_IsNoop(t *testing.T) {
	s := newTestStore(&memStorage{}, &mockAuthenticator{})
	s.Bootstrap(context.Background())

	s.Logout(context.Background())
	s.Logout(context.Background())

	st := s.Snapshot()
	assertAnonymous(t, st)
	if st.Loading {
		t.Error("Loading = true after logout")
	}
}

func TestStore_Logout_StorageFailure_StillClearsState(t *testing.T) {
	storage := &memStorage{clearErr: errors.New("permission denied")}
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t1", User: demoUser}, nil
		},
	}
	s := newTestStore(storage, auth)
	s.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"})

	s.Logout(context.Background())

	assertAnonymous(t, s.Snapshot())
}

func TestStore_Logout_BumpsGeneration(t *testing.T) {
	s := newTestStore(&memStorage{}, &mockAuthenticator{})
	before := s.Generation()

	s.Logout(context.Background())

	if s.IsCurrent(before) {
		t.Error("generation did not change on logout")
	}
}

// --- Token / Subscribe ---

func TestStore_Token_ReturnsTokenAndGeneration(t *testing.T) {
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t1", User: demoUser}, nil
		},
	}
	s := newTestStore(&memStorage{}, auth)

	if tok, _ := s.Token(); tok != "" {
		t.Errorf("Token = %q before login, want empty", tok)
	}

	s.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"})

	tok, gen := s.Token()
	if tok != "t1" {
		t.Errorf("Token = %q, want t1", tok)
	}
	if !s.IsCurrent(gen) {
		t.Error("generation from Token is not current")
	}
}

func TestStore_Subscribe_NotifiesAfterMutation(t *testing.T) {
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t1", User: demoUser}, nil
		},
	}
	s := newTestStore(&memStorage{}, auth)

	var seen []State
	cancel := s.Subscribe(func(st State) {
		// 通知時点でSnapshotが同じ状態を返す
		if got := s.Snapshot(); got.Generation != st.Generation {
			t.Errorf("snapshot generation %d != notified %d", got.Generation, st.Generation)
		}
		seen = append(seen, st)
	})

	s.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"})
	if len(seen) != 1 || !seen[0].IsAuthenticated {
		t.Fatalf("seen = %+v, want one authenticated state", seen)
	}

	cancel()
	s.Logout(context.Background())
	if len(seen) != 1 {
		t.Errorf("observer called after cancel: %d notifications", len(seen))
	}
}

func TestStore_Snapshot_IsACopy(t *testing.T) {
	auth := &mockAuthenticator{
		loginFn: func(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
			return &model.AuthResult{Token: "t1", User: &model.User{ID: "u1", Name: "Demo"}}, nil
		},
	}
	s := newTestStore(&memStorage{}, auth)
	s.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"})

	snap := s.Snapshot()
	snap.User.Name = "Changed"

	if s.Snapshot().User.Name != "Demo" {
		t.Error("modifying a snapshot changed the store")
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}
