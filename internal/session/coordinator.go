package session

import (
	"context"
	"log/slog"
)

// Navigator はログイン画面への遷移を行う。
type Navigator interface {
	ToLogin(ctx context.Context)
}

// NavigatorFunc は関数をNavigatorとして扱うアダプター。
type NavigatorFunc func(ctx context.Context)

// ToLogin はNavigatorを実装する。
func (f NavigatorFunc) ToLogin(ctx context.Context) {
	f(ctx)
}

// Coordinator は未認証シグナルを受け取り、セッションの破棄とログイン画面への遷移を行う。
// 破棄と遷移はセッションの世代ごとに一度だけ行われる。
type Coordinator struct {
	store     *Store
	navigator Navigator
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// NewCoordinator はCoordinatorを生成する。metricsはnilでもよい。
func NewCoordinator(store *Store, navigator Navigator, metrics MetricsRecorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     store,
		navigator: navigator,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleUnauthorized はapiclient.UnauthorizedFuncとして登録する。
// generationが既に古い場合（同じセッションで破棄済み）は何もしない。
func (c *Coordinator) HandleUnauthorized(ctx context.Context, generation uint64) {
	// 同一セッションで並行した401の大半はここで弾かれ、永続化ロックを取らない
	if !c.store.IsCurrent(generation) || !c.store.teardown(ctx, generation) {
		c.logger.Debug("ignoring unauthorized signal for stale session",
			slog.Uint64("generation", generation),
		)
		return
	}

	if c.metrics != nil {
		c.metrics.RecordSessionTeardown()
	}
	c.logger.Warn("session torn down after unauthorized response",
		slog.Uint64("generation", generation),
	)

	if c.navigator != nil {
		c.navigator.ToLogin(ctx)
	}
}
