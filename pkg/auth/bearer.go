package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/golang-jwt/jwt/v4"
)

// BearerToken sends a static access token. When the token is a JWT its
// expiry is checked locally so an expired token fails before any I/O.
type BearerToken struct {
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewBearerToken creates a bearer provider. Opaque tokens are accepted as is.
func NewBearerToken(token string) *BearerToken {
	b := &BearerToken{token: token, now: time.Now}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		b.expiresAt = claims.ExpiresAt.Time
	}
	return b
}

// ExpiresAt returns the JWT expiry, zero for opaque tokens or tokens without exp.
func (b *BearerToken) ExpiresAt() time.Time {
	return b.expiresAt
}

// Apply implements Provider.
func (b *BearerToken) Apply(ctx context.Context, req *http.Request) error {
	if b.token == "" {
		return apierr.New(apierr.KindAuthentication, "no access token configured")
	}
	if !b.expiresAt.IsZero() && !b.now().Before(b.expiresAt) {
		return apierr.New(apierr.KindAuthentication, "access token expired at "+b.expiresAt.UTC().Format(time.RFC3339))
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}

// Invalidate implements Provider. A static token cannot be refreshed.
func (b *BearerToken) Invalidate() {}
