package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Policy is the set of roles allowed through a guard and the message
// returned to everyone else.
type Policy struct {
	Roles  []string
	Denied string
}

var (
	DoctorsOnly = Policy{
		Roles:  []string{RoleDoctor},
		Denied: "Access denied. Doctors only.",
	}
	DispatcherOrAdmin = Policy{
		Roles:  []string{RoleDispatcher, RoleAdmin},
		Denied: "Access denied. Dispatcher or admin only.",
	}
)

// Allows reports whether id passes the policy. A policy with no roles admits
// any authenticated caller.
func (p Policy) Allows(id Identity) bool {
	if len(p.Roles) == 0 {
		return true
	}
	return id.HasRole(p.Roles...)
}

// Require returns middleware enforcing p. Unauthenticated requests get 401;
// authenticated callers outside the policy get 403 and the wrapped handler
// is never invoked. No role bypasses the check.
func Require(p Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !p.Allows(id) {
				return echo.NewHTTPError(http.StatusForbidden, p.Denied)
			}
			return next(c)
		}
	}
}

// RequireRole is Require with a generated denial message.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return Require(Policy{
		Roles:  roles,
		Denied: fmt.Sprintf("required role: %s", strings.Join(roles, " or ")),
	})
}

// Authenticated admits any caller carrying an Identity.
func Authenticated() echo.MiddlewareFunc {
	return Require(Policy{})
}
