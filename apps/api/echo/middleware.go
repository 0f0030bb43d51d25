package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sauti/core/auth"
)

var contextPrincipalKey = "principal"

// authMiddleware resolves the bearer credential on the request into a
// Principal and stashes it in the context. It rejects with ErrAuthentication;
// role checks happen further down, in the core's rule table.
func authMiddleware(a *auth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return auth.ErrAuthentication
			}

			p, err := a.ResolveToken(parts[1])
			if err != nil {
				return err
			}
			ctx.Set(contextPrincipalKey, p)
			return next(ctx)
		}
	}
}

func getContextPrincipal(ctx echo.Context) (auth.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(auth.Principal); ok {
		return p, nil
	}
	return auth.Principal{}, errors.Wrap(auth.ErrAuthentication, "principal not found in echo.Context")
}
