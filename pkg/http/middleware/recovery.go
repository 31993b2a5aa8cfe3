package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "CorrPull/pkg/logger"
)

// Recover logs handler panics with their stack and lets echo answer 500.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("http handler panic",
				applogger.String("path", c.Path()),
				applogger.Error(err),
				applogger.String("stack", string(stack)),
			)
			return err
		},
	})
}
