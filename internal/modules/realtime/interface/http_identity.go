package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
	"github.com/ktg0215/Management-sub000/internal/shared/auth"
	"github.com/ktg0215/Management-sub000/internal/shared/httputil"
)

var (
	errInvalidIdentity = errors.New("token does not carry a usable identity")
	errForbidden       = errors.New("role not allowed")
	errBadAPIKey       = errors.New("invalid api key")
)

const identityContextKey = "realtime.identity"

var adminErrors = httputil.NewErrorMapper().
	WithMapping(auth.ErrMissingToken, http.StatusUnauthorized, "missing token").
	WithMapping(auth.ErrInvalidToken, http.StatusUnauthorized, "invalid token").
	WithMapping(errInvalidIdentity, http.StatusUnauthorized, "invalid token").
	WithMapping(errForbidden, http.StatusForbidden, "forbidden").
	WithMapping(errBadAPIKey, http.StatusUnauthorized, "invalid api key")

func authenticate(validator auth.TokenValidator, token string) (domain.Identity, error) {
	claims, err := validator.Validate(token)
	if err != nil {
		return domain.Identity{}, err
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims *auth.Claims) (domain.Identity, error) {
	userID := claims.User()
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing user", errInvalidIdentity)
	}
	role := domain.ParseRole(claims.Role)
	if role == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing role", errInvalidIdentity)
	}
	return domain.Identity{UserID: userID, Role: role, StoreID: int64(claims.StoreID)}, nil
}

// RequireRole admits requests whose bearer token carries min or a higher role.
func RequireRole(validator auth.TokenValidator, min domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := authenticate(validator, auth.ExtractBearerToken(c.Request()))
			if err == nil && !identity.Role.AtLeast(min) {
				err = fmt.Errorf("%w: %s below %s", errForbidden, identity.Role, min)
			}
			if err != nil {
				c.Logger().Warnf("admin route rejected path=%s ip=%s: %v", c.Path(), c.RealIP(), err)
				return adminErrors.HTTPError(err)
			}
			c.Set(identityContextKey, identity)
			return next(c)
		}
	}
}

// RequireAPIKey admits service calls presenting the configured X-API-Key.
// With no key configured every request is refused.
func RequireAPIKey(key string) echo.MiddlewareFunc {
	key = strings.TrimSpace(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := auth.ExtractAPIKey(c.Request())
			if key == "" || !auth.EqualKeys(got, key) {
				c.Logger().Warnf("service route rejected path=%s ip=%s", c.Path(), c.RealIP())
				return adminErrors.HTTPError(errBadAPIKey)
			}
			return next(c)
		}
	}
}

func identityFrom(c echo.Context) (domain.Identity, bool) {
	identity, ok := c.Get(identityContextKey).(domain.Identity)
	return identity, ok
}
