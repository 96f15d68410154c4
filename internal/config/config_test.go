package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_NoEnvVars_ReturnsDefaults(t *testing.T) {
	t.Setenv("API_URL", "")
	t.Setenv("API_TIMEOUT", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("SESSION_REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIURL != "http://localhost:5000" {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, "http://localhost:5000")
	}
	if cfg.APITimeout != 0 {
		t.Errorf("APITimeout = %v, want 0", cfg.APITimeout)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "3000")
	}
	if cfg.SessionRedisURL != "" {
		t.Errorf("SessionRedisURL = %q, want empty", cfg.SessionRedisURL)
	}
	if cfg.SessionRedisPrefix != "bookreview:" {
		t.Errorf("SessionRedisPrefix = %q, want %q", cfg.SessionRedisPrefix, "bookreview:")
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitAuth != 10 {
		t.Errorf("RateLimitAuth = %d, want 10", cfg.RateLimitAuth)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if !strings.HasSuffix(cfg.SessionFile, filepath.Join(".bookreview", "session.json")) {
		t.Errorf("SessionFile = %q, want suffix .bookreview/session.json", cfg.SessionFile)
	}
}

func TestLoad_APIURL_TrailingSlashesTrimmed(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want string
	}{
		{"single slash", "https://books.example.com/", "https://books.example.com"},
		{"multiple slashes", "https://books.example.com///", "https://books.example.com"},
		{"no slash", "http://10.0.0.5:5000", "http://10.0.0.5:5000"},
		{"with path", "https://example.com/backend/", "https://example.com/backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("API_URL", tt.env)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.APIURL != tt.want {
				t.Errorf("APIURL = %q, want %q", cfg.APIURL, tt.want)
			}
		})
	}
}

func TestLoad_InvalidAPIURL_ReturnsError(t *testing.T) {
	for _, v := range []string{"ftp://example.com", "localhost:5000", "http://"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("API_URL", v)

			if _, err := Load(); err == nil {
				t.Fatalf("API_URL=%q でエラーが返されなかった", v)
			}
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("API_TIMEOUT", "15s")
	t.Setenv("SERVER_PORT", "8088")
	t.Setenv("SESSION_FILE", "/tmp/custom-session.json")
	t.Setenv("SESSION_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("SESSION_REDIS_PREFIX", "br:")
	t.Setenv("RATE_LIMIT_GENERAL", "60")
	t.Setenv("RATE_LIMIT_AUTH", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 15*time.Second {
		t.Errorf("APITimeout = %v, want 15s", cfg.APITimeout)
	}
	if cfg.ServerPort != "8088" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8088")
	}
	if cfg.SessionFile != "/tmp/custom-session.json" {
		t.Errorf("SessionFile = %q, want %q", cfg.SessionFile, "/tmp/custom-session.json")
	}
	if cfg.SessionRedisURL != "redis://localhost:6379/2" {
		t.Errorf("SessionRedisURL = %q", cfg.SessionRedisURL)
	}
	if cfg.SessionRedisPrefix != "br:" {
		t.Errorf("SessionRedisPrefix = %q, want %q", cfg.SessionRedisPrefix, "br:")
	}
	if cfg.RateLimitGeneral != 60 {
		t.Errorf("RateLimitGeneral = %d, want 60", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitAuth != 5 {
		t.Errorf("RateLimitAuth = %d, want 5", cfg.RateLimitAuth)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_InvalidNumbers_FallBackToDefaults(t *testing.T) {
	t.Setenv("API_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_GENERAL", "abc")
	t.Setenv("RATE_LIMIT_AUTH", "-3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 0 {
		t.Errorf("APITimeout = %v, want 0", cfg.APITimeout)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitAuth != 10 {
		t.Errorf("RateLimitAuth = %d, want 10", cfg.RateLimitAuth)
	}
}

func TestLoad_BaseURL_DerivesCookieSecure(t *testing.T) {
	tests := []struct {
		name       string
		port       string
		baseURL    string
		wantBase   string
		wantSecure bool
	}{
		{"default follows server port", "4000", "", "http://localhost:4000", false},
		{"http base", "", "http://books.local:3000/", "http://books.local:3000", false},
		{"https base", "", "https://books.example.com", "https://books.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SERVER_PORT", tt.port)
			t.Setenv("BASE_URL", tt.baseURL)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.BaseURL != tt.wantBase {
				t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, tt.wantBase)
			}
			if cfg.CookieSecure != tt.wantSecure {
				t.Errorf("CookieSecure = %v, want %v", cfg.CookieSecure, tt.wantSecure)
			}
		})
	}
}
