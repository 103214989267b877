package refresh

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime recovers the remaining lifetime from an access token's
// exp claim. The token is parsed without signature verification: this
// is a client reading its own token for scheduling, not an authority
// trusting it.
func TokenLifetime(token string, now time.Time) (time.Duration, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return 0, false
	}
	if claims.ExpiresAt == nil {
		return 0, false
	}

	remaining := claims.ExpiresAt.Time.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}
