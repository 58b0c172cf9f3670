package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/lms"
	"github.com/edtools/edcore/core/operator"
)

type syncApi struct {
	lmsSvc      *lms.Service
	identitySvc *identity.Service
	validate    *validator.Validate
}

func registerSyncAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := syncApi{
		lmsSvc:      deps.LMSSvc,
		identitySvc: deps.IdentitySvc,
		validate:    deps.Validate,
	}
	registrar := roleMiddleware(operator.RoleRegistrar)

	g.POST("/sync/enrollments", api.syncEnrollment, jwt, registrar)
	g.POST("/identity/provision", api.provision, jwt, registrar)
}

// Handlers

func (api *syncApi) syncEnrollment(ctx echo.Context) error {
	if api.lmsSvc == nil {
		return core.NewConfigError("moodle.url")
	}
	var req lms.SyncRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to SyncRequest")
	}
	if err := req.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.lmsSvc.SyncEnrollment(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *syncApi) provision(ctx echo.Context) error {
	if api.identitySvc == nil {
		return core.NewConfigError("azure.tenantID")
	}
	var a identity.Applicant
	if err := ctx.Bind(&a); err != nil {
		return errors.Wrap(err, "binding to Applicant")
	}
	if err := a.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.identitySvc.Provision(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "provisioning identity")
	}
	return ctx.JSON(http.StatusCreated, res)
}
