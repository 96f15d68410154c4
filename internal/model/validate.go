package model

import (
	"fmt"
	"strings"
	"time"
)

// MinYear は登録可能な出版年の下限。
const MinYear = 1000

// MaxYear は登録可能な出版年の上限（現在年 + 2）を返す。
func MaxYear(now time.Time) int {
	return now.Year() + 2
}

// Validate は書籍入力を検証し、前後の空白を除去した値を返す。
// 送信前の検証のみを行い、重複などのビジネスルールはAPI側に委ねる。
func (in BookInput) Validate(now time.Time) (BookInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Description = strings.TrimSpace(in.Description)
	in.Genre = strings.TrimSpace(in.Genre)

	switch {
	case in.Title == "":
		return in, NewValidationError("Title is required.")
	case in.Author == "":
		return in, NewValidationError("Author is required.")
	case in.Description == "":
		return in, NewValidationError("Description is required.")
	case !IsGenre(in.Genre):
		return in, NewValidationError("Please select a genre.")
	case in.Year < MinYear || in.Year > MaxYear(now):
		return in, NewValidationError(fmt.Sprintf("Published year must be between %d and %d.", MinYear, MaxYear(now)))
	}
	return in, nil
}

// Validate はレビュー入力を検証する。
func (in ReviewInput) Validate() (ReviewInput, error) {
	in.ReviewText = strings.TrimSpace(in.ReviewText)
	if in.Rating < MinRating || in.Rating > MaxRating {
		return in, NewValidationError(fmt.Sprintf("Rating must be between %d and %d.", MinRating, MaxRating))
	}
	if in.ReviewText == "" {
		return in, NewValidationError("Review text is required.")
	}
	return in, nil
}

// Validate はログイン入力を検証する。
func (c Credentials) Validate() (Credentials, error) {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || c.Password == "" {
		return c, NewValidationError("Email and password are required.")
	}
	return c, nil
}

// Validate は新規登録入力を検証する。
func (in RegisterInput) Validate() (RegisterInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Name == "":
		return in, NewValidationError("Name is required.")
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return in, NewValidationError("A valid email address is required.")
	case len(in.Password) < 6:
		return in, NewValidationError("Password must be at least 6 characters.")
	}
	return in, nil
}
