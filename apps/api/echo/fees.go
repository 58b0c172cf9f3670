package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/fee"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
)

type feeApi struct {
	paymentSvc *payment.Service
	validate   *validator.Validate
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := feeApi{
		paymentSvc: deps.PaymentSvc,
		validate:   deps.Validate,
	}
	bursar := roleMiddleware(operator.RoleBursar)

	fg := g.Group("/fees", jwt, bursar)
	fg.POST("/plans", api.computePlan)
	fg.POST("/distributions", api.distribute)

	sg := g.Group("/students/:student/obligations", jwt, bursar)
	sg.POST("", api.issueObligations)
	sg.GET("", api.queryObligations)
}

type (
	PlanResponse struct {
		fee.Plan
		Shares [][]fee.ComponentShare `json:"component_shares"`
	}

	IssueScheduleRequest struct {
		fee.PlanRequest
		Program  string `json:"program"`
		Currency string `json:"currency"`
	}
)

// planFromRequest validates req and computes its plan. A zero total is derived from the components.
func (api *feeApi) planFromRequest(req *fee.PlanRequest) (fee.Plan, error) {
	if req.Total.IsZero() {
		req.Total = fee.ComponentsTotal(req.Components)
	}
	if err := req.Validate(api.validate); err != nil {
		return fee.Plan{}, err
	}
	return fee.ComputePlan(*req)
}

// Handlers

func (api *feeApi) computePlan(ctx echo.Context) error {
	var req fee.PlanRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to PlanRequest")
	}
	plan, err := api.planFromRequest(&req)
	if err != nil {
		return err
	}
	shares, err := fee.AllocateComponents(req.Components, plan.Total, plan.Installments)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, PlanResponse{Plan: plan, Shares: shares})
}

func (api *feeApi) distribute(ctx echo.Context) error {
	var req fee.DistributionRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to DistributionRequest")
	}
	if err := req.Validate(api.validate); err != nil {
		return err
	}
	dist, err := fee.PlanDistribution(req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dist)
}

func (api *feeApi) issueObligations(ctx echo.Context) error {
	var req IssueScheduleRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to IssueScheduleRequest")
	}
	if req.Currency != "" && len(req.Currency) != 3 {
		return core.NewValidationError(nil, core.FieldError{Field: "currency", Error: "currency must be a 3-letter ISO code"})
	}
	plan, err := api.planFromRequest(&req.PlanRequest)
	if err != nil {
		return err
	}

	dueDates := make([]time.Time, 0, len(plan.Installments))
	for _, inst := range plan.Installments {
		dueDates = append(dueDates, inst.DueDate)
	}
	if err = fee.ValidateDueDates(dueDates, time.Now().UTC()); err != nil {
		return err
	}

	obs, err := api.paymentSvc.IssueSchedule(ctx.Request().Context(), ctx.Param("student"), req.Program, req.Currency, plan)
	if err != nil {
		return errors.Wrap(err, "issuing schedule")
	}
	return ctx.JSON(http.StatusCreated, obs)
}

func (api *feeApi) queryObligations(ctx echo.Context) error {
	obs, err := api.paymentSvc.OpenObligations(ctx.Request().Context(), ctx.Param("student"))
	if err != nil {
		return errors.Wrap(err, "querying open obligations")
	}
	return ctx.JSON(http.StatusOK, obs)
}
