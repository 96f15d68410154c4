package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/bookreview/internal/apiclient"
	"github.com/hitoshi/bookreview/internal/config"
	"github.com/hitoshi/bookreview/internal/logger"
	"github.com/hitoshi/bookreview/internal/metrics"
	"github.com/hitoshi/bookreview/internal/middleware"
	"github.com/hitoshi/bookreview/internal/security"
	"github.com/hitoshi/bookreview/internal/session"
	"github.com/hitoshi/bookreview/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。whoami・logoutの結果もwに出力する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	switch cmd {
	case CommandWhoami:
		return runWhoami(w, cfg)
	case CommandLogout:
		return runLogout(w, cfg)
	default:
		slog.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("port", cfg.ServerPort),
			slog.String("api_url", cfg.APIURL),
		)
		return runServe(cfg)
	}
}

// runtime はserveモードで組み立てた依存関係。
type runtime struct {
	handler     http.Handler
	store       *session.Store
	rateLimiter *middleware.RateLimiter
	closeFn     func() error
}

// Close は組み立て時に確保したリソースを解放する。
func (rt *runtime) Close() error {
	if rt.rateLimiter != nil {
		rt.rateLimiter.Stop()
	}
	return rt.closeFn()
}

// sessionDeps はセッションとAPIクライアントの組み立て結果。
type sessionDeps struct {
	store   *session.Store
	client  *apiclient.Client
	closeFn func() error
}

// buildSession はストレージ・セッション・未認証コーディネーター・APIクライアントを組み立てる。
// セッションとAPIクライアントは相互に依存するため、クライアント生成後に認証APIを設定する。
func buildSession(ctx context.Context, cfg *config.Config, navigator session.Navigator, collector *metrics.Collector) (*sessionDeps, error) {
	// 1. 永続化ストレージ
	storage, closeFn, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. セッションと未認証コーディネーター
	var storeOpts []session.StoreOption
	var clientOpts []apiclient.Option
	var coordMetrics session.MetricsRecorder
	if collector != nil {
		storeOpts = append(storeOpts, session.WithMetrics(collector))
		clientOpts = append(clientOpts, apiclient.WithMetrics(collector))
		coordMetrics = collector
	}
	store := session.NewStore(storage, nil, slog.Default(), storeOpts...)
	coord := session.NewCoordinator(store, navigator, coordMetrics, slog.Default())

	// 3. APIクライアント（トークンはセッションから、401はコーディネーターへ）
	clientOpts = append(clientOpts,
		apiclient.WithTokenSource(store),
		apiclient.WithUnauthorizedHandler(coord.HandleUnauthorized),
	)
	client := apiclient.New(cfg.APIURL, &http.Client{Timeout: cfg.APITimeout}, slog.Default(), clientOpts...)
	store.SetAuthenticator(client)

	return &sessionDeps{store: store, client: client, closeFn: closeFn}, nil
}

// openStorage は設定に応じてセッションの永続化先を開く。
// SESSION_REDIS_URLが設定されていればRedis、それ以外はファイルを使う。
func openStorage(ctx context.Context, cfg *config.Config) (session.Storage, func() error, error) {
	if cfg.SessionRedisURL != "" {
		client, err := session.OpenRedis(ctx, cfg.SessionRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("session storage: redis", slog.String("prefix", cfg.SessionRedisPrefix))
		return session.NewRedisStorage(client, cfg.SessionRedisPrefix), client.Close, nil
	}

	slog.Debug("session storage: file", slog.String("path", cfg.SessionFile))
	return session.NewFileStorage(cfg.SessionFile), func() error { return nil }, nil
}

// buildRuntime はserveモードの全依存関係をワイヤリングする。
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. セッション・APIクライアント
	deps, err := buildSession(ctx, cfg, web.NewNavigator(slog.Default()), collector)
	if err != nil {
		return nil, err
	}
	deps.store.Subscribe(func(st session.State) {
		collector.SetAuthenticated(st.IsAuthenticated)
	})

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	router, err := web.NewRouter(&web.RouterDeps{
		Sessions:     deps.store,
		GuardMetrics: collector,
		Books:        deps.client,
		Reviews:      deps.client,
		Sanitizer:    security.NewContentSanitizer(),
		RateLimiter:  rateLimiter,
		CSRF:         middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		Metrics:      metrics.Handler(reg),
		Logger:       slog.Default(),
	})
	if err != nil {
		rateLimiter.Stop()
		deps.closeFn()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return &runtime{
		handler:     router,
		store:       deps.store,
		rateLimiter: rateLimiter,
		closeFn:     deps.closeFn,
	}, nil
}

// runServe はページサーバーモードで起動する。
// セッションの復元をバックグラウンドで開始し、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	// 保存済みセッションの復元（完了までガードは読み込み中ページを返す）
	go restoreSession(ctx, rt.store)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      rt.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("page server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down page server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("page server stopped gracefully")
	return nil
}

// restoreSession は保存済みセッションを復元し、結果をログに記録する。
func restoreSession(ctx context.Context, store *session.Store) {
	if err := store.Bootstrap(ctx); err != nil {
		slog.Warn("session restore failed", slog.String("error", err.Error()))
	}
	st := store.Snapshot()
	slog.Info("session restore completed", slog.Bool("authenticated", st.IsAuthenticated))
}

// runWhoami は保存済みセッションをAPIで検証し、ログイン中のユーザーを出力する。
// 検証に失敗したセッションは通常の起動時と同様に消去される。
func runWhoami(w io.Writer, cfg *config.Config) error {
	ctx := context.Background()
	deps, err := buildSession(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer deps.closeFn()

	if err := deps.store.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	st := deps.store.Snapshot()
	if !st.IsAuthenticated {
		fmt.Fprintln(w, "Not signed in.")
		return nil
	}
	fmt.Fprintf(w, "Signed in as %s <%s>\n", st.User.Name, st.User.Email)
	return nil
}

// runLogout は保存済みセッションを消去する。
func runLogout(w io.Writer, cfg *config.Config) error {
	ctx := context.Background()
	deps, err := buildSession(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer deps.closeFn()

	deps.store.Logout(ctx)
	fmt.Fprintln(w, "Signed out.")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
