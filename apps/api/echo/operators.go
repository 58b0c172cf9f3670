package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/operator"
)

type operatorApi struct {
	svc      *operator.Service
	conf     *core.Config
	validate *validator.Validate
}

func registerOperatorAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := operatorApi{
		svc:      deps.OperatorSvc,
		conf:     deps.Conf,
		validate: deps.Validate,
	}

	og := g.Group("/operators")

	// un-authed endpoints
	og.POST("/login", api.login)

	// authed endpoints
	ag := og.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.GET("", api.query, roleMiddleware(operator.RoleAdmin))
	ag.POST("", api.create, roleMiddleware(operator.RoleAdmin))
	ag.GET("/roles", api.queryRoles, roleMiddleware(operator.RoleAdmin))
	ag.PATCH("/:id", api.update, roleMiddleware(operator.RoleAdmin))
}

// Handlers

func (api *operatorApi) login(ctx echo.Context) error {
	var creds operator.Credentials
	if err := ctx.Bind(&creds); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}

	op, err := api.svc.Authenticate(ctx.Request().Context(), creds)
	switch errors.Cause(err) {
	case nil:
	case operator.ErrInvalidCredentials:
		return errAuthenticationFailed
	case operator.ErrDeactivated:
		return errAccountDeactivated
	default:
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(NewClaims(op, api.conf), api.conf)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *operatorApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc, api.conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *operatorApi) me(ctx echo.Context) error {
	op, err := getContextOperator(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context operator")
	}
	return ctx.JSON(http.StatusOK, op)
}

func (api *operatorApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	ops, err := api.svc.QueryAll(ctx.Request().Context(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying operators")
	}
	return ctx.JSON(http.StatusOK, ops)
}

func (api *operatorApi) create(ctx echo.Context) error {
	var data operator.NewOperator
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOperator")
	}

	op, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating operator")
	}
	return ctx.JSON(http.StatusCreated, op)
}

func (api *operatorApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, operator.Roles)
}

func (api *operatorApi) update(ctx echo.Context) error {
	var data operator.UpdateOperator
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOperator")
	}

	// Say No to Suicide! an operator cannot deactivate themselves
	ctxOp, err := getContextOperator(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context operator")
	}
	if ctxOp.ID == ctx.Param("id") && data.IsActive != nil && !*data.IsActive {
		return errHttpForbidden
	}

	op, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating operator")
	}
	return ctx.JSON(http.StatusOK, op)
}

type TokenResponse struct {
	Token string `json:"token"`
}
