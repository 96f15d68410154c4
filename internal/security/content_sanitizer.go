// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザーが入力した書籍の説明やレビュー本文から
// マークアップを除去し、プレーンテキストとしてAPIへ送信できるようにする。
// bluemondayのStrictPolicy（全タグ除去）を使用する。
package security

import (
	"html"
	"strings"

	"github.com/hitoshi/bookreview/internal/model"
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力のサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// PlainText は全てのHTMLタグを除去したテキストを返す。
	// script, styleなどの要素は内容ごと除去される。
	// エンティティはデコードして返すため、"&" や "<3" などの文字はそのまま残る。
	// 同一入力に対して常に同一出力を返す（冪等）。
	PlainText(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はマークアップを除去したテキストを返す。
func (s *contentSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// SanitizeBook は書籍入力の全テキストフィールドをプレーンテキストにする。
func SanitizeBook(s ContentSanitizer, in model.BookInput) model.BookInput {
	in.Title = s.PlainText(in.Title)
	in.Author = s.PlainText(in.Author)
	in.Description = s.PlainText(in.Description)
	in.Genre = s.PlainText(in.Genre)
	return in
}

// SanitizeReview はレビュー本文をプレーンテキストにする。
func SanitizeReview(s ContentSanitizer, in model.ReviewInput) model.ReviewInput {
	in.ReviewText = s.PlainText(in.ReviewText)
	return in
}
