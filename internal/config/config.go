package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// defaultAPIURL はAPI_URL未設定時に使用するローカル開発用のAPIアドレス。
const defaultAPIURL = "http://localhost:5000"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIURL     string        // 末尾スラッシュを除去済み。"/api" は apiclient 側で付与する
	APITimeout time.Duration // 0 はタイムアウトなし（トランスポートのデフォルト動作）

	// Session
	SessionFile        string
	SessionRedisURL    string
	SessionRedisPrefix string

	// Server
	ServerPort   string
	BaseURL      string // ブラウザから見たページサーバーのURL
	CookieSecure bool   // BaseURLがhttpsの場合true

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須の環境変数はない。API_URLがURLとして解釈できない場合のみエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	apiURL, err := normalizeAPIURL(getEnvString("API_URL", defaultAPIURL))
	if err != nil {
		return nil, fmt.Errorf("invalid API_URL: %w", err)
	}
	cfg.APIURL = apiURL

	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 0)
	cfg.SessionFile = getEnvString("SESSION_FILE", defaultSessionFile())
	cfg.SessionRedisURL = getEnvString("SESSION_REDIS_URL", "")
	cfg.SessionRedisPrefix = getEnvString("SESSION_REDIS_PREFIX", "bookreview:")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort), "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// normalizeAPIURL はAPIのベースアドレスを検証し、末尾のスラッシュを除去する。
// "//" を含むパスの生成を防ぐため、末尾スラッシュは何個あっても全て取り除く。
func normalizeAPIURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https: %q", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host is empty: %q", raw)
	}
	return trimmed, nil
}

// defaultSessionFile はセッション永続化ファイルのデフォルトパスを返す。
// ホームディレクトリが取得できない環境ではカレントディレクトリ配下を使う。
func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".bookreview", "session.json")
	}
	return filepath.Join(home, ".bookreview", "session.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
