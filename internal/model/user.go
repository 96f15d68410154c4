// Package model はドメインモデルを定義する。
package model

import "encoding/json"

// User はログイン中のユーザーレコードを表す。
// APIはMongo形式の "_id" を返す場合と "id" を返す場合があるため、両方を受け付ける。
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnmarshalJSON は "id" と "_id" のどちらでもIDを読み取る。
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string `json:"id"`
		MID   string `json:"_id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.ID = firstNonEmpty(raw.ID, raw.MID)
	u.Name = raw.Name
	u.Email = raw.Email
	return nil
}

// Credentials はログインリクエストのボディ。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput は新規登録リクエストのボディ。
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult はlogin / registerのレスポンス。
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
