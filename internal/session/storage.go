package session

import (
	"context"

	"github.com/hitoshi/bookreview/internal/model"
)

// 永続化キー。トークンとユーザーは常に同時に保存・削除する。
const (
	tokenKey = "token"
	userKey  = "user"
)

// Storage はトークンとユーザーレコードの永続化先。
// 保存されていない場合、Loadは空のトークンとnilのユーザーをエラーなしで返す。
type Storage interface {
	Load(ctx context.Context) (token string, user *model.User, err error)
	Save(ctx context.Context, token string, user *model.User) error
	Clear(ctx context.Context) error
}
