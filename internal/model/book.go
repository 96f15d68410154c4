package model

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// Ref は他のドキュメントへの参照を表す。
// APIはIDの文字列のみを返す場合と、populate済みのオブジェクトを返す場合がある。
type Ref struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// UnmarshalJSON は文字列IDとオブジェクトの両形式を受け付ける。
func (r *Ref) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Ref{}
		return nil
	}

	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref{ID: id}
		return nil
	}

	var raw struct {
		ID     string `json:"id"`
		MID    string `json:"_id"`
		Name   string `json:"name"`
		Title  string `json:"title"`
		Author string `json:"author"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Ref{
		ID:     firstNonEmpty(raw.ID, raw.MID),
		Name:   raw.Name,
		Title:  raw.Title,
		Author: raw.Author,
	}
	return nil
}

// Book は書籍を表す。
type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Description   string    `json:"description"`
	Genre         string    `json:"genre"`
	Year          int       `json:"year"`
	AddedBy       Ref       `json:"addedBy"`
	AverageRating float64   `json:"averageRating"`
	TotalReviews  int       `json:"totalReviews"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UnmarshalJSON は "_id" をIDとして読み取る。
func (b *Book) UnmarshalJSON(data []byte) error {
	type plain Book
	var raw struct {
		plain
		MID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Book(raw.plain)
	b.ID = firstNonEmpty(b.ID, raw.MID)
	return nil
}

// OwnedBy は書籍が指定ユーザーによって登録されたかどうかを返す。
// 編集・削除ボタンの表示判定に使用する。
func (b *Book) OwnedBy(u *User) bool {
	return u != nil && u.ID != "" && b.AddedBy.ID == u.ID
}

// BookInput は書籍の登録・更新リクエストのボディ。
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	Year        int    `json:"year"`
}

// BookInputFrom は既存の書籍から編集フォームの初期値を作る。
func BookInputFrom(b *Book) BookInput {
	return BookInput{
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genre:       b.Genre,
		Year:        b.Year,
	}
}

// Pagination は書籍一覧のページ情報。
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalBooks  int  `json:"totalBooks"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// BookList は GET /books のレスポンス。
type BookList struct {
	Books      []Book     `json:"books"`
	Pagination Pagination `json:"pagination"`
}

// 一覧のソートキー。
const (
	SortByCreatedAt = "createdAt"
	SortByTitle     = "title"
	SortByAuthor    = "author"
	SortByYear      = "year"
)

// SortOptions は一覧画面で選択できるソートキーと表示名。
var SortOptions = []struct {
	Value string
	Label string
}{
	{SortByCreatedAt, "Newest First"},
	{SortByTitle, "Title A-Z"},
	{SortByAuthor, "Author A-Z"},
	{SortByYear, "Year"},
}

// BookQuery は書籍一覧の検索条件。
type BookQuery struct {
	Page      int
	Search    string
	Genre     string
	SortBy    string
	SortOrder string
}

// DefaultBookQuery は一覧画面の初期検索条件（新しい順）を返す。
func DefaultBookQuery() BookQuery {
	return BookQuery{
		Page:      1,
		SortBy:    SortByCreatedAt,
		SortOrder: "desc",
	}
}

// Normalize は不正な値をデフォルトに置き換えた検索条件を返す。
func (q BookQuery) Normalize() BookQuery {
	def := DefaultBookQuery()
	if q.Page < 1 {
		q.Page = def.Page
	}
	switch q.SortBy {
	case SortByCreatedAt, SortByTitle, SortByAuthor, SortByYear:
	default:
		q.SortBy = def.SortBy
	}
	if q.SortOrder != "asc" && q.SortOrder != "desc" {
		q.SortOrder = def.SortOrder
	}
	if q.Genre != "" && !IsGenre(q.Genre) {
		q.Genre = ""
	}
	return q
}

// Values はクエリ文字列に変換する。空の検索語・ジャンルは送信しない。
func (q BookQuery) Values() url.Values {
	q = q.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Genre != "" {
		v.Set("genre", q.Genre)
	}
	v.Set("sortBy", q.SortBy)
	v.Set("sortOrder", q.SortOrder)
	return v
}

// Genres は登録可能なジャンルの一覧。
var Genres = []string{
	"Fiction",
	"Non-Fiction",
	"Science Fiction",
	"Mystery",
	"Romance",
	"Fantasy",
	"Biography",
	"History",
	"Self-Help",
	"Thriller",
	"Horror",
	"Poetry",
	"Drama",
	"Adventure",
	"Comedy",
}

// IsGenre はジャンル一覧に含まれる値かどうかを返す。
func IsGenre(g string) bool {
	for _, v := range Genres {
		if v == g {
			return true
		}
	}
	return false
}
