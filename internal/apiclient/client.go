// Package apiclient は書評REST APIのクライアントを提供する。
// リクエストの組み立て（ベースURL、JSON、Bearerトークン）と、
// 401応答時の未認証シグナル発火をここに集約し、画面側が認証ヘッダーや
// 全体的な失敗処理を直接扱わずに済むようにする。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookreview/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限（10MB）。
	maxResponseSize = 10 << 20
	// userAgent はAPIに送信するUser-Agent。
	userAgent = "bookreview/1.0"
)

// TokenSource は送信時点のBearerトークンとセッション世代を提供する。
// トークンが空の場合は未認証としてリクエストを送る。
type TokenSource interface {
	Token() (token string, generation uint64)
}

// UnauthorizedFunc は401応答を受けたときに呼ばれるシグナル。
// generationはリクエスト送信時点のセッション世代。
type UnauthorizedFunc func(ctx context.Context, generation uint64)

// MetricsRecorder はリクエスト結果の記録先。
type MetricsRecorder interface {
	RecordAPIRequest(method string, statusCode int, duration time.Duration)
}

// requestIDKey はリクエストIDをコンテキストに格納するためのキー。
type requestIDKey struct{}

// WithRequestID はAPIリクエストに付与するリクエストIDをコンテキストに設定する。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// Option はClientの任意設定。
type Option func(*Client)

// WithTokenSource はBearerトークンの取得元を設定する。
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler は401応答時のシグナル受信者を設定する。
func WithUnauthorizedHandler(fn UnauthorizedFunc) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Client) { c.metrics = m }
}

// Client は書評REST APIのクライアント。
// 全リクエストで同じヘッダー付与・エラー正規化を行う。リトライは行わない。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	baseURL        string
	tokens         TokenSource
	onUnauthorized UnauthorizedFunc
	metrics        MetricsRecorder
}

// New はClientを生成する。baseURLはNormalizeBaseURLで正規化される。
func New(baseURL string, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    NormalizeBaseURL(baseURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeBaseURL は末尾のスラッシュを除去し、"/api" を付与する。
// 既に "/api" で終わっている場合は重ねて付与しない。
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(base, "/api") {
		return base
	}
	return base + "/api"
}

// do はリクエストを送信し、成功時はレスポンスをoutにデコードする。
// 失敗時は常に*model.APIErrorを返す。401の場合は未認証シグナルを発火してから返す。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, generation := "", uint64(0)
	if c.tokens != nil {
		token, generation = c.tokens.Token()
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return model.NewRequestError(fmt.Errorf("failed to encode request body: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return model.NewRequestError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestIDFrom(ctx))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, 0, start)
		c.logger.Error("API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkError(err)
	}
	defer resp.Body.Close()
	c.record(method, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("failed to read API response body",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := model.NewResponseError(resp.StatusCode, data)
		c.logger.Warn("API returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, generation)
		}
		return apiErr
	}

	c.logger.Debug("API request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.Bool("authenticated", token != ""),
	)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("failed to decode API response",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewDecodeError(resp.StatusCode, err)
	}
	return nil
}

func (c *Client) record(method string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(method, status, time.Since(start))
	}
}
