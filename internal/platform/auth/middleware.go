package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Caller roles carried in the token.
const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleDispatcher = "dispecer"
	RoleAdmin      = "admin"
)

// Identity is the authenticated caller. It is trusted as issued by the token
// provider and never re-validated against the accounts table.
type Identity struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// HasRole reports whether the caller holds any of the given roles.
func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role, Name: c.Name}
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 verification; when empty, RS256 keys are
	// resolved from JWKSURL (or discovered from Issuer).
	SigningKey []byte
	// Logger receives key set fetch failures. Nil discards them.
	Logger *zerolog.Logger
}

func (cfg JWTConfig) logger() zerolog.Logger {
	if cfg.Logger == nil {
		return zerolog.Nop()
	}
	return *cfg.Logger
}

func (cfg JWTConfig) keyFunc() jwt.Keyfunc {
	if len(cfg.SigningKey) > 0 {
		return func(t *jwt.Token) (interface{}, error) {
			return cfg.SigningKey, nil
		}
	}
	return newKeySet(cfg).keyfunc
}

func (cfg JWTConfig) parserOptions() []jwt.ParserOption {
	method := "RS256"
	if len(cfg.SigningKey) > 0 {
		method = "HS256"
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}

// JWTMiddleware authenticates the bearer token and stores the caller Identity
// on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFunc := cfg.keyFunc()
	opts := cfg.parserOptions()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(err)
			}

			ctx := WithIdentity(c.Request().Context(), claims.Identity())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", claims.UserID)

			return next(c)
		}
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFromContext returns the caller set by JWTMiddleware. ok is false for
// unauthenticated requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}
