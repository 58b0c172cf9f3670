package stripesvc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/payment"
)

// Gateway is the Stripe payment gateway. Missing keys surface as configuration errors
// when the operation needing them is called.
type Gateway struct {
	api           *client.API
	webhookSecret string
	logger        core.Logger
}

var _ payment.Gateway = (*Gateway)(nil)

func NewGateway(conf *core.Config, logger core.Logger, backends ...*stripe.Backends) *Gateway {
	gw := &Gateway{webhookSecret: conf.Stripe.WebhookSecret, logger: logger}
	if conf.Stripe.SecretKey != "" {
		var b *stripe.Backends
		if len(backends) > 0 {
			b = backends[0]
		}
		gw.api = client.New(conf.Stripe.SecretKey, b)
	}
	return gw
}

func (gw *Gateway) CreateIntent(ctx context.Context, ni payment.NewIntent) (payment.Intent, error) {
	if gw.api == nil {
		return payment.Intent{}, core.NewConfigError("stripe.secretKey")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ni.AmountCents),
		Currency: stripe.String(ni.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range ni.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := gw.api.PaymentIntents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			return payment.Intent{}, &core.RemoteError{
				System:   "stripe",
				Function: "payment_intents.create",
				Status:   serr.HTTPStatusCode,
				Code:     string(serr.Code),
				Message:  serr.Msg,
			}
		}
		return payment.Intent{}, errors.Wrap(err, "creating payment intent")
	}
	return payment.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ParseEvent verifies the Stripe-Signature header of a webhook payload.
func (gw *Gateway) ParseEvent(payload []byte, signature string) (payment.Event, error) {
	if gw.webhookSecret == "" {
		return payment.Event{}, core.NewConfigError("stripe.webhookSecret")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, gw.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		gw.logger.Warn("stripe webhook rejected", err)
		return payment.Event{}, errors.Wrap(payment.ErrInvalidEvent, err.Error())
	}

	res := payment.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Type != payment.EventPaymentSucceeded || ev.Data == nil {
		return res, nil
	}
	var pi stripe.PaymentIntent
	if err = json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return payment.Event{}, errors.Wrap(payment.ErrInvalidEvent, "decoding payment intent")
	}
	res.Intent = &payment.IntentData{
		ID:             pi.ID,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
	return res, nil
}
