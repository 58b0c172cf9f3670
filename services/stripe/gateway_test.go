package stripesvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/payment"
	testutil "github.com/edtools/edcore/tests"
)

const secret = "whsec_test"

func sign(payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func backends(srvURL string) *stripe.Backends {
	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srvURL),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &stripe.Backends{API: b, Connect: b, Uploads: b}
}

func TestGateway_CreateIntent(t *testing.T) {
	var form url.Values
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_x","amount":20000,"currency":"usd"}`))
	}))
	defer srv.Close()

	conf := &core.Config{Stripe: core.StripeConfig{SecretKey: "sk_test_1"}}
	gw := NewGateway(conf, testutil.NewLogger(), backends(srv.URL))

	intent, err := gw.CreateIntent(context.Background(), payment.NewIntent{
		AmountCents: 20000,
		Currency:    "usd",
		Metadata:    map[string]string{"student": "ST-1", "obligation": "ob-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret_x"}, intent)

	assert.Equal(t, "Bearer sk_test_1", auth)
	assert.Equal(t, "20000", form.Get("amount"))
	assert.Equal(t, "usd", form.Get("currency"))
	assert.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
	assert.Equal(t, "ST-1", form.Get("metadata[student]"))
}

func TestGateway_CreateIntent_errors(t *testing.T) {
	gw := NewGateway(&core.Config{}, testutil.NewLogger())
	_, err := gw.CreateIntent(context.Background(), payment.NewIntent{AmountCents: 100, Currency: "usd"})
	assert.True(t, core.IsConfigError(err))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"amount_too_small","message":"Amount must be at least $0.50 usd"}}`))
	}))
	defer srv.Close()

	gw = NewGateway(&core.Config{Stripe: core.StripeConfig{SecretKey: "sk_test_1"}}, testutil.NewLogger(), backends(srv.URL))
	_, err = gw.CreateIntent(context.Background(), payment.NewIntent{AmountCents: 10, Currency: "usd"})
	rerr, ok := core.AsRemoteError(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, "amount_too_small", rerr.Code)
	assert.Equal(t, http.StatusBadRequest, rerr.Status)
}

func TestGateway_ParseEvent(t *testing.T) {
	succeeded := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"amount": 20000,
			"amount_received": 12050,
			"currency": "usd",
			"metadata": {"student": "ST-1", "obligation": "ob-2"}
		}}
	}`)
	refunded := []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`)
	now := time.Now()

	gw := NewGateway(&core.Config{Stripe: core.StripeConfig{WebhookSecret: secret}}, testutil.NewLogger())

	t.Run("payment succeeded", func(t *testing.T) {
		ev, err := gw.ParseEvent(succeeded, sign(succeeded, now))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, payment.EventPaymentSucceeded, ev.Type)
		require.NotNil(t, ev.Intent)
		assert.Equal(t, payment.IntentData{
			ID:             "pi_1",
			Amount:         20000,
			AmountReceived: 12050,
			Currency:       "usd",
			Metadata:       map[string]string{"student": "ST-1", "obligation": "ob-2"},
		}, *ev.Intent)
	})

	t.Run("other event", func(t *testing.T) {
		ev, err := gw.ParseEvent(refunded, sign(refunded, now))
		require.NoError(t, err)
		assert.Equal(t, "charge.refunded", ev.Type)
		assert.Nil(t, ev.Intent)
	})

	t.Run("bad signature", func(t *testing.T) {
		tests := []struct {
			name      string
			signature string
		}{
			{name: "missing", signature: ""},
			{name: "tampered", signature: sign(refunded, now)},
			{name: "too old", signature: sign(succeeded, now.Add(-time.Hour))},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := gw.ParseEvent(succeeded, tt.signature)
				assert.Equal(t, payment.ErrInvalidEvent, errors.Cause(err))
			})
		}
	})

	t.Run("no secret", func(t *testing.T) {
		_, err := NewGateway(&core.Config{}, testutil.NewLogger()).ParseEvent(succeeded, sign(succeeded, now))
		assert.True(t, core.IsConfigError(err))
	})
}
