package handlers

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	binderr "github.com/opst/rollout/pkg/api-types-binding/errors"
	xe "github.com/opst/rollout/pkg/errors"
)

// TriggerClaims are claims of tokens for the trigger endpoint.
type TriggerClaims struct {
	jwt.RegisteredClaims
}

// IssueToken creates a HS256 token for subject, expiring after ttl.
func IssueToken(secret []byte, subject string, now time.Time, ttl time.Duration) (string, error) {
	claims := TriggerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			// jti
			ID: uuid.NewString(),

			// sub
			Subject: subject,

			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", xe.Wrap(err)
	}
	return token, nil
}

// RequireToken rejects requests without a valid "Authorization: Bearer <HS256 token>" header.
//
// When secret is empty, all requests pass.
func RequireToken(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if len(secret) == 0 {
			return next
		}
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithExpirationRequired(),
		)

		return func(c echo.Context) error {
			authz := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || raw == "" {
				return binderr.Unauthorized(`"Authorization: Bearer <token>" is required`, nil)
			}

			claims := new(TriggerClaims)
			if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return secret, nil
			}); err != nil {
				return binderr.Unauthorized("token is invalid or expired", err)
			}
			c.Set("subject", claims.Subject)
			return next(c)
		}
	}
}
