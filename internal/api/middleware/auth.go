package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// claims is the admin token payload. Tokens are opaque to the operator
// console — it just sends back whatever IssueToken handed it.
type claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// JWTAuth validates a bearer token signed with secret. Paths under
// /dashboard, /health and /metrics are exempt, matching the teacher's
// path-prefix allowlist.
func JWTAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if strings.HasPrefix(path, "/dashboard") ||
			strings.HasPrefix(path, "/health") ||
			strings.HasPrefix(path, "/metrics") {
			return c.Next()
		}

		auth := c.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "missing bearer token",
			})
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")

		token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid or expired token",
			})
		}

		return c.Next()
	}
}

// IssueToken mints a bearer token for subject, valid for ttl. The
// daemon issues one to itself at startup and prints it alongside the
// dashboard QR code, since there is no operator login form in scope.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}
