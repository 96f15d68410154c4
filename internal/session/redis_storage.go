package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/bookreview/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisStorage はRedisにセッションを保存する。
// キーは prefix+"token" と prefix+"user"（JSON）。有効期限は設定しない。
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage はRedisStorageを生成する。
func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

// OpenRedis は接続URLからクライアントを生成し、疎通を確認する。
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStorage) tokenKey() string { return s.prefix + tokenKey }
func (s *RedisStorage) userKey() string  { return s.prefix + userKey }

// Load はトークンとユーザーを読み込む。キーがない場合は空を返す。
func (s *RedisStorage) Load(ctx context.Context) (string, *model.User, error) {
	vals, err := s.client.MGet(ctx, s.tokenKey(), s.userKey()).Result()
	if err != nil {
		return "", nil, fmt.Errorf("failed to load session from redis: %w", err)
	}

	var token string
	if v, ok := vals[0].(string); ok {
		token = v
	}

	var user *model.User
	if v, ok := vals[1].(string); ok && v != "" {
		user = &model.User{}
		if err := json.Unmarshal([]byte(v), user); err != nil {
			return "", nil, fmt.Errorf("failed to decode user from redis: %w", err)
		}
	}
	return token, user, nil
}

// Save はトークンとユーザーを同一トランザクションで書き込む。
func (s *RedisStorage) Save(ctx context.Context, token string, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(), token, 0)
		pipe.Set(ctx, s.userKey(), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Clear は両方のキーを削除する。
func (s *RedisStorage) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey(), s.userKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear session in redis: %w", err)
	}
	return nil
}
