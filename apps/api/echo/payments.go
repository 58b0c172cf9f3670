package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
	"github.com/edtools/edcore/services/report"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBytes = 64 << 10
)

type paymentApi struct {
	svc      *payment.Service
	logger   core.Logger
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentApi{
		svc:      deps.PaymentSvc,
		logger:   deps.Logger,
		validate: deps.Validate,
	}
	bursar := roleMiddleware(operator.RoleBursar)

	// signed by the payment gateway
	g.POST("/payments/stripe/webhook", api.webhook)

	sg := g.Group("/students/:student", jwt, bursar)
	sg.GET("/cascade", api.cascade)
	sg.POST("/payments", api.allocate)
	sg.POST("/payment-intents", api.createIntent)

	g.GET("/reports/collection", api.collectionReport, jwt, bursar)
}

// Handlers

func (api *paymentApi) cascade(ctx echo.Context) error {
	amount, err := bindDecimal(ctx, "amount")
	if err != nil {
		return err
	}
	allocs, err := api.svc.Breakdown(ctx.Request().Context(), ctx.Param("student"), amount)
	if err != nil {
		return errors.Wrap(err, "computing cascade breakdown")
	}
	return ctx.JSON(http.StatusOK, CascadeResponse{
		Amount:      amount,
		Allocations: allocs,
		Unallocated: payment.Payment{Amount: amount, Allocations: allocs}.Unallocated(),
	})
}

func (api *paymentApi) allocate(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	data.Student = ctx.Param("student")
	data.Source = payment.SourceManual

	pmt, created, err := api.svc.AllocatePayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "allocating payment")
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, PaymentResponse{Payment: pmt, Unallocated: pmt.Unallocated()})
}

func (api *paymentApi) createIntent(ctx echo.Context) error {
	var data payment.IntentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IntentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	data.Student = ctx.Param("student")

	res, err := api.svc.CreateIntent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment intent")
	}
	return ctx.JSON(http.StatusCreated, res)
}

// webhook acknowledges every verified event: processing failures are logged, not retried
// by the gateway.
func (api *paymentApi) webhook(ctx echo.Context) error {
	payload, err := ioutil.ReadAll(http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxWebhookBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading payload").SetInternal(err)
	}

	ev, err := api.svc.ParseEvent(payload, ctx.Request().Header.Get(signatureHeader))
	if err != nil {
		return err
	}

	if err = api.svc.HandleEvent(ctx.Request().Context(), ev); err != nil {
		api.logger.Error("payment event processing failed", err, map[string]interface{}{"id": ev.ID, "type": ev.Type})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"received": true})
}

func (api *paymentApi) collectionReport(ctx echo.Context) error {
	rows, err := api.svc.CollectionReport(ctx.Request().Context(), ctx.QueryParams()["student"]...)
	if err != nil {
		return errors.Wrap(err, "building collection report")
	}
	if ctx.QueryParam("format") != "xlsx" {
		return ctx.JSON(http.StatusOK, rows)
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, report.ContentType)
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="collection.xlsx"`)
	resp.WriteHeader(http.StatusOK)
	return report.WriteCollection(resp, rows)
}

type (
	CascadeResponse struct {
		Amount      decimal.Decimal      `json:"amount"`
		Allocations []payment.Allocation `json:"allocations"`
		Unallocated decimal.Decimal      `json:"unallocated"`
	}

	PaymentResponse struct {
		payment.Payment
		Unallocated decimal.Decimal `json:"unallocated"`
	}
)
