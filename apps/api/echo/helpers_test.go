package echoapi_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	echoapi "github.com/edtools/edcore/apps/api/echo"
	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/fee"
	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/lms"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
	appfs "github.com/edtools/edcore/fs"
	emailsvc "github.com/edtools/edcore/services/email"
	stripesvc "github.com/edtools/edcore/services/stripe"
	inmemdb "github.com/edtools/edcore/storage/database/inmem"
	testutil "github.com/edtools/edcore/tests"
)

const (
	webhookSecret = "whsec_test"
	goodPwd       = "Kx9!vTq#2m"
)

var ctx = context.Background()

type fixture struct {
	srv       *echoapi.Server
	conf      *core.Config
	logger    *testutil.Logger
	payRepo   payment.Repository
	opSvc     *operator.Service
	mailSvc   *emailsvc.ConsoleService
	lmsClient *stubLMS

	admin, bursar, registrar operator.Operator
}

type setupOption func(f *fixture, deps *echoapi.ServerDeps)

func withoutLMS() setupOption {
	return func(_ *fixture, deps *echoapi.ServerDeps) { deps.LMSSvc = nil }
}

func withoutStripe() setupOption {
	return func(f *fixture, deps *echoapi.ServerDeps) {
		deps.PaymentSvc = payment.NewService(f.payRepo, nil, nil, f.conf, f.logger)
	}
}

func setup(t *testing.T, opts ...setupOption) *fixture {
	t.Helper()
	f := &fixture{
		conf: &core.Config{
			AppName:         "EdCore",
			TestMode:        true,
			SecretKey:       "test-secret",
			FrontendBaseURL: "https://portal.example.org",
			Server: core.ServerConfig{
				JWTExpirationDelta:        time.Hour,
				JWTRefreshExpirationDelta: 4 * time.Hour,
			},
			Moodle: core.MoodleConfig{StudentRoleID: 5},
			Azure:  core.AzureConfig{Enabled: true, Sandbox: true, Domain: "example.org"},
			Stripe: core.StripeConfig{SecretKey: "sk_test_1", PublishableKey: "pk_test_1", WebhookSecret: webhookSecret, Currency: "usd"},
		},
		logger:    testutil.NewLogger(),
		lmsClient: newStubLMS(),
	}
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, f.conf, f.logger)
	validate, translator := core.NewValidator()
	operator.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)

	db := inmemdb.Open()
	f.payRepo = inmemdb.NewPaymentRepository(db)
	f.opSvc = operator.NewService(inmemdb.NewOperatorRepository(db), validate)
	f.mailSvc = emailsvc.NewConsoleServiceMock(f.conf, f.logger)

	stripeAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_x"}`))
	}))
	t.Cleanup(stripeAPI.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(stripeAPI.URL),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		MaxNetworkRetries: stripe.Int64(0),
	})
	gateway := stripesvc.NewGateway(f.conf, f.logger, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	deps := echoapi.ServerDeps{
		Conf:           f.conf,
		Logger:         f.logger,
		Validate:       validate,
		Translator:     translator,
		OperatorSvc:    f.opSvc,
		PaymentSvc:     payment.NewService(f.payRepo, gateway, nil, f.conf, f.logger),
		LMSSvc:         lms.NewService(f.lmsClient, f.conf, f.logger),
		IdentitySvc:    identity.NewService(nil, f.mailSvc, f.conf, f.logger),
		DisableReqLogs: true,
	}
	for _, opt := range opts {
		opt(f, &deps)
	}
	f.srv = echoapi.NewServer(deps)

	f.admin = f.createOperator(t, "Admin", "admin@example.org", operator.RoleAdmin)
	f.bursar = f.createOperator(t, "Bursar", "bursar@example.org", operator.RoleBursar)
	f.registrar = f.createOperator(t, "Registrar", "registrar@example.org", operator.RoleRegistrar)
	return f
}

func (f *fixture) createOperator(t *testing.T, name, email string, roles ...string) operator.Operator {
	op, err := f.opSvc.Create(ctx, operator.NewOperator{
		Name:            name,
		Email:           email,
		Password:        goodPwd,
		PasswordConfirm: goodPwd,
		Roles:           roles,
	})
	require.NoError(t, err)
	return op
}

func (f *fixture) token(t *testing.T, op operator.Operator) string {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(op, f.conf), f.conf)
	require.NoError(t, err)
	return token
}

func (f *fixture) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	f.srv.ServeHTTP(rec, req)
}

// addObligations stores obligations of student due monthly from 2026-02-01, oldest first.
func (f *fixture) addObligations(t *testing.T, student string, amounts ...int64) []payment.Obligation {
	obs := make([]payment.Obligation, 0, len(amounts))
	for i, amount := range amounts {
		obs = append(obs, payment.Obligation{
			ID:          fmt.Sprintf("%s-ob-%d", student, i+1),
			Student:     student,
			Description: fmt.Sprintf("Cuota %d", i+1),
			DueDate:     time.Date(2026, time.Month(2+i), 1, 0, 0, 0, 0, time.UTC),
			Amount:      decimal.NewFromInt(amount),
			Outstanding: decimal.NewFromInt(amount),
			Currency:    "USD",
		})
	}
	obs, err := f.payRepo.CreateObligations(ctx, obs)
	require.NoError(t, err)
	return obs
}

func signPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f *fixture, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// stubLMS is an LMS holding only categories. Created ids count up from 10.
type stubLMS struct {
	nextID     int64
	categories []lms.Category
	failing    map[string]error
}

var _ lms.Client = (*stubLMS)(nil)

func newStubLMS() *stubLMS {
	return &stubLMS{nextID: 10, failing: make(map[string]error)}
}

func (c *stubLMS) id() int64 {
	c.nextID++
	return c.nextID
}

func (c *stubLMS) Categories(_ context.Context) ([]lms.Category, error) {
	return c.categories, c.failing["Categories"]
}

func (c *stubLMS) CreateCategory(_ context.Context, _ lms.NewCategory) (int64, error) {
	return c.id(), c.failing["CreateCategory"]
}

func (c *stubLMS) Courses(_ context.Context) ([]lms.Course, error) {
	return nil, c.failing["Courses"]
}

func (c *stubLMS) CreateCourse(_ context.Context, _ lms.NewCourse) (int64, error) {
	return c.id(), c.failing["CreateCourse"]
}

func (c *stubLMS) UserByEmail(_ context.Context, _ string) (lms.User, error) {
	if err := c.failing["UserByEmail"]; err != nil {
		return lms.User{}, err
	}
	return lms.User{}, lms.ErrUserNotFound
}

func (c *stubLMS) CreateUser(_ context.Context, _ lms.NewUser) (int64, error) {
	return c.id(), c.failing["CreateUser"]
}

func (c *stubLMS) UpdateUserIDNumber(_ context.Context, _ int64, _ string) error {
	return c.failing["UpdateUserIDNumber"]
}

func (c *stubLMS) Enrol(_ context.Context, _ lms.Enrolment) error {
	return c.failing["Enrol"]
}

func assertLogged(t *testing.T, logger *testutil.Logger, level, msg string) {
	t.Helper()
	assert.True(t, logger.Has(level, msg), "%s %q not logged", level, msg)
}
