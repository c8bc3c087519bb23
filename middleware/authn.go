package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/internal/auth/rbac"
	"go.curalink.io/qrlogin/services"
)

// credentialContextKey is the echo context key holding the verified credential.
const credentialContextKey = "qrlogin.credential"

// Authenticate verifies the credential cookie (or a Bearer header, for
// non-browser callers) on every request and stores the claims in the echo
// context. Expired credentials get a distinct error body so clients know to
// re-authenticate instead of treating themselves as hostile.
func Authenticate(tokens *services.TokenService, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenValue := extractToken(c, cookieName)
			if tokenValue == "" {
				return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("missing credential"))
			}

			credential, err := tokens.Verify(c.Request().Context(), tokenValue)
			if err != nil {
				if errors.Is(err, serrors.ErrTokenExpired) {
					return c.JSON(http.StatusUnauthorized, serrors.NewExpired("credential expired, re-authenticate"))
				}
				return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("invalid credential"))
			}

			c.Set(credentialContextKey, credential)

			return next(c)
		}
	}
}

// RequireRoles gates a route on the role guard. Must run after Authenticate.
func RequireRoles(requireElevated bool, allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := CredentialFrom(c)

			if err := rbac.Authorize(credential, allowedRoles, requireElevated); err != nil {
				if errors.Is(err, serrors.ErrUnauthenticated) {
					return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("missing credential"))
				}
				return c.JSON(http.StatusForbidden, serrors.NewForbidden("insufficient role"))
			}

			return next(c)
		}
	}
}

// CredentialFrom returns the verified credential stored by Authenticate,
// or nil when the request was not authenticated.
func CredentialFrom(c echo.Context) *domain.Credential {
	credential, _ := c.Get(credentialContextKey).(*domain.Credential)
	return credential
}

func extractToken(c echo.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}

	return ""
}
