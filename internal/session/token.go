package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry はJWTのexpクレームを署名検証なしで読み取る。
// JWTでない、またはexpを持たないトークンの場合はokがfalseになる。
// 署名の検証はAPIサーバーの責務であり、ここでは期限切れの判定にのみ使用する。
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired はトークンの有効期限がnow以前かどうかを返す。
// 期限が読み取れないトークンは期限切れとみなさない。
func TokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && !exp.After(now)
}
