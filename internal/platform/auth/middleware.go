package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims are the JWT claims issued to hospital staff. Subject is the staff
// member's directory subject; Role is advisory only — the gateway resolves
// the authoritative role from the directory on every lookup.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Config holds the token verification parameters. Tokens are HMAC-signed;
// this service issues its own staff tokens rather than delegating to an
// external identity provider.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// APIKeyVerifier resolves a hashed API key to a staff identity. Implemented
// by the staff directory.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, keyHash string) (Identity, error)
}

// Middleware authenticates requests with either an X-API-Key header or a
// Bearer JWT. On success the staff identity is attached to the request
// context; on failure the request is rejected with 401 and no further detail.
func Middleware(cfg Config, keys APIKeyVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := c.Request().Header.Get("X-API-Key"); raw != "" {
				if keys == nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "api keys not accepted")
				}
				ident, err := keys.VerifyAPIKey(c.Request().Context(), HashKey(raw))
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
				}
				attach(c, ident)
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing credentials")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.Secret, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			attach(c, Identity{
				Subject: claims.Subject,
				Name:    claims.Name,
				Role:    claims.Role,
			})
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for local development that
// grants an admin identity when no credentials are presented.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := IdentityFromContext(c.Request().Context()); !ok {
				attach(c, Identity{Subject: "dev-admin", Name: "Dev Admin", Role: RoleAdmin})
			}
			return next(c)
		}
	}
}

// SignToken issues an HMAC-signed staff token. Used by the staff CLI and by
// tests; production deployments may swap in an external issuer sharing the
// same secret.
func SignToken(cfg Config, subject, name, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
		Role: role,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

func attach(c echo.Context, ident Identity) {
	ctx := WithIdentity(c.Request().Context(), ident)
	c.SetRequest(c.Request().WithContext(ctx))
}
