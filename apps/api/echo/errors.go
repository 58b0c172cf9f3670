package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "operator not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// sentinelCode returns the status answered for the sentinel errors of the domain packages.
func sentinelCode(err error) (int, bool) {
	switch err {
	case operator.ErrNotFound, payment.ErrObligationNotFound, payment.ErrPaymentNotFound:
		return http.StatusNotFound, true
	case operator.ErrInvalidCredentials, payment.ErrInvalidEvent:
		return http.StatusBadRequest, true
	case operator.ErrDeactivated:
		return http.StatusForbidden, true
	case operator.ErrEmailExists:
		return http.StatusConflict, true
	case payment.ErrNothingToAllocate:
		return http.StatusUnprocessableEntity, true
	case identity.ErrProvisioningDisabled:
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if sentinel, ok := sentinelCode(cause); ok {
			code = sentinel
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *core.ConflictError:
				code = http.StatusConflict
				message = err.Error()
			case *core.DataError:
				code = http.StatusUnprocessableEntity
				message = echo.Map{"error": origErr.Error(), "field": origErr.Field}
			case *core.ConfigError:
				code = http.StatusInternalServerError
				message = "service not configured"
				logger.Error("missing configuration", err, map[string]interface{}{"key": origErr.Key})
			case *core.RemoteError:
				code = http.StatusBadGateway
				message = err.Error()
				logger.Warn("remote system error", err, map[string]interface{}{"system": origErr.System, "function": origErr.Function})
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var person core.LogPerson
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					person = claims.LogPerson()
				}
				logger.Error(msg, errors.Wrap(err, msg), person)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
