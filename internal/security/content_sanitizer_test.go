package security

import (
	"strings"
	"testing"

	"github.com/hitoshi/bookreview/internal/model"
)

// TestPlainText_StripsMarkup はタグが除去されテキストが残ることを検証する。
func TestPlainText_StripsMarkup(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "A great read.", "A great read."},
		{"強調タグを除去", "<strong>Loved</strong> it", "Loved it"},
		{"リンクはテキストのみ残る", `See <a href="https://example.com">this</a>`, "See this"},
		{"scriptは内容ごと除去", `Nice<script>alert("xss")</script>`, "Nice"},
		{"styleは内容ごと除去", `<style>body{}</style>Plot twist`, "Plot twist"},
		{"イベント属性付きの画像を除去", `<img src=x onerror="alert(1)">Cover`, "Cover"},
		{"アンパサンドを保持", "Pride & Prejudice", "Pride & Prejudice"},
		{"タグでない山括弧を保持", "I <3 this book", "I <3 this book"},
		{"前後の空白を除去", "  spaced  ", "spaced"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestPlainText_Idempotent は同一入力に対して同一出力を返し、再適用しても変わらないことを検証する。
func TestPlainText_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()
	inputs := []string{
		"Tom &amp; Jerry",
		"<p>Paragraph</p><p>Another</p>",
		"plain",
	}

	for _, in := range inputs {
		once := sanitizer.PlainText(in)
		if twice := sanitizer.PlainText(once); strings.Contains(twice, "<p>") || twice == "" {
			t.Errorf("PlainText(PlainText(%q)) = %q", in, twice)
		}
		if again := sanitizer.PlainText(in); again != once {
			t.Errorf("PlainText(%q) not deterministic: %q vs %q", in, once, again)
		}
	}
}

// TestSanitizeBook は書籍入力の全テキストフィールドが処理されることを検証する。
func TestSanitizeBook(t *testing.T) {
	in := model.BookInput{
		Title:       "<b>Dune</b>",
		Author:      "Frank <i>Herbert</i>",
		Description: `Spice<script>steal()</script> must flow`,
		Genre:       "Science Fiction",
		Year:        1965,
	}

	got := SanitizeBook(NewContentSanitizer(), in)

	want := model.BookInput{
		Title:       "Dune",
		Author:      "Frank Herbert",
		Description: "Spice must flow",
		Genre:       "Science Fiction",
		Year:        1965,
	}
	if got != want {
		t.Errorf("SanitizeBook = %+v, want %+v", got, want)
	}
}

// TestSanitizeReview はレビュー本文が処理され評価が保持されることを検証する。
func TestSanitizeReview(t *testing.T) {
	got := SanitizeReview(NewContentSanitizer(), model.ReviewInput{Rating: 4, ReviewText: "<em>Solid</em> book"})

	if got.Rating != 4 || got.ReviewText != "Solid book" {
		t.Errorf("SanitizeReview = %+v", got)
	}
}
