package model

import (
	"encoding/json"
	"time"
)

// Review は書籍レビューを表す。
// BookIDはユーザーのレビュー一覧ではpopulate済み（title, author付き）で返される。
type Review struct {
	ID         string    `json:"id"`
	BookID     Ref       `json:"bookId"`
	UserID     Ref       `json:"userId"`
	Rating     int       `json:"rating"`
	ReviewText string    `json:"reviewText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UnmarshalJSON は "_id" をIDとして読み取る。
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	var raw struct {
		plain
		MID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Review(raw.plain)
	r.ID = firstNonEmpty(r.ID, raw.MID)
	return nil
}

// WrittenBy はレビューが指定ユーザーのものかどうかを返す。
func (r *Review) WrittenBy(u *User) bool {
	return u != nil && u.ID != "" && r.UserID.ID == u.ID
}

// ReviewInput はレビュー投稿・更新リクエストのボディ。
type ReviewInput struct {
	Rating     int    `json:"rating"`
	ReviewText string `json:"reviewText"`
}

// 評価の範囲。
const (
	MinRating = 1
	MaxRating = 5
)
