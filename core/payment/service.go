package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/fee"
)

var (
	ErrObligationNotFound = errors.New("obligation not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicatePayment   = errors.New("a payment with this reference already exists")
	// ErrStaleObligation is returned by Repository.SavePayment when an obligation no longer
	// has the outstanding balance an allocation was computed against.
	ErrStaleObligation   = errors.New("obligation outstanding balance changed")
	ErrNothingToAllocate = errors.New("student has no open obligations")
	ErrInvalidEvent      = errors.New("invalid payment event")

	minIntentCents int64 = 50
	saveAttempts         = 3
	lockPrefix           = "lock:payment:"
)

type (
	Repository interface {
		CreateObligations(ctx context.Context, obs []Obligation) ([]Obligation, error)
		GetObligation(ctx context.Context, id string) (Obligation, error)
		// QueryOpenObligations returns the obligations of student with an outstanding balance,
		// by due date then creation date.
		QueryOpenObligations(ctx context.Context, student string) ([]Obligation, error)
		GetPayment(ctx context.Context, reference string) (Payment, error)
		// SavePayment stores the payment and its allocations and decrements the outstanding
		// balance of the allocated obligations, atomically.
		SavePayment(ctx context.Context, p Payment) (Payment, error)
		CollectionSummary(ctx context.Context, students ...string) ([]CollectionRow, error)
	}

	// Gateway is the card payment processor.
	Gateway interface {
		CreateIntent(ctx context.Context, ni NewIntent) (Intent, error)
		// ParseEvent verifies the signature of a webhook payload. It returns ErrInvalidEvent
		// for a bad signature or payload.
		ParseEvent(payload []byte, signature string) (Event, error)
	}

	// Locker serialises work on a key across processes.
	Locker interface {
		Lock(ctx context.Context, key string) (unlock func(), err error)
	}

	Service struct {
		repo           Repository
		gateway        Gateway
		locker         Locker
		logger         core.Logger
		currency       string
		publishableKey string
	}
)

// NewService returns the payment service. gateway and locker may be nil.
func NewService(repo Repository, gateway Gateway, locker Locker, conf *core.Config, logger core.Logger) *Service {
	currency := strings.ToUpper(conf.Stripe.Currency)
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		repo:           repo,
		gateway:        gateway,
		locker:         locker,
		logger:         logger,
		currency:       currency,
		publishableKey: conf.Stripe.PublishableKey,
	}
}

// Cascade spreads amount over obligations in their order, giving each at most its
// outstanding balance. Obligations without an outstanding balance are skipped.
func Cascade(obligations []Obligation, amount decimal.Decimal) []Allocation {
	allocs := make([]Allocation, 0, len(obligations))
	remaining := amount
	for _, ob := range obligations {
		if !remaining.IsPositive() {
			break
		}
		if !ob.Outstanding.IsPositive() {
			continue
		}
		allocated := decimal.Min(ob.Outstanding, remaining).RoundDown(2)
		if !allocated.IsPositive() {
			break // less than a cent left
		}
		allocs = append(allocs, Allocation{
			ObligationID: ob.ID,
			Description:  ob.Description,
			Program:      ob.Program,
			DueDate:      ob.DueDate,
			Outstanding:  ob.Outstanding,
			Amount:       allocated,
			Currency:     ob.Currency,
		})
		remaining = remaining.Sub(allocated)
	}
	return allocs
}

func sumAllocations(allocs []Allocation) decimal.Decimal {
	return lo.Reduce(allocs, func(sum decimal.Decimal, a Allocation, _ int) decimal.Decimal {
		return sum.Add(a.Amount)
	}, decimal.Zero)
}

func validationErr(field, msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: field, Error: msg})
}

// checkAmount accepts positive amounts in whole cents.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationErr("amount", "amount must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return validationErr("amount", "amount cannot have more than 2 decimal places")
	}
	return nil
}

// OpenObligations returns the obligations of student with an outstanding balance, oldest due first.
func (svc *Service) OpenObligations(ctx context.Context, student string) ([]Obligation, error) {
	return svc.repo.QueryOpenObligations(ctx, core.CleanString(student))
}

// Breakdown previews how amount would be allocated over the open obligations of student.
func (svc *Service) Breakdown(ctx context.Context, student string, amount decimal.Decimal) ([]Allocation, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	obs, err := svc.OpenObligations(ctx, student)
	if err != nil {
		return nil, err
	}
	return Cascade(obs, amount), nil
}

// AllocatePayment settles a payment over the open obligations of its student, oldest due
// first. Payments are idempotent on their reference: when one was already stored it is
// returned untouched with created false.
func (svc *Service) AllocatePayment(ctx context.Context, np NewPayment) (pmt Payment, created bool, err error) {
	np.Clean()
	if np.Reference == "" {
		return Payment{}, false, validationErr("reference", "payment reference is required")
	}
	if np.Student == "" {
		return Payment{}, false, validationErr("student", "student is required")
	}
	if err := checkAmount(np.Amount); err != nil {
		return Payment{}, false, err
	}

	if svc.locker != nil {
		unlock, err := svc.locker.Lock(ctx, lockPrefix+np.Reference)
		if err != nil {
			return Payment{}, false, errors.Wrapf(err, "locking payment %q", np.Reference)
		}
		defer unlock()
	}

	if pmt, err = svc.repo.GetPayment(ctx, np.Reference); err == nil {
		svc.logger.Info("payment already processed", map[string]interface{}{"reference": np.Reference})
		return pmt, false, nil
	} else if errors.Cause(err) != ErrPaymentNotFound {
		return Payment{}, false, err
	}

	for attempt := 1; attempt <= saveAttempts; attempt++ {
		obs, err := svc.repo.QueryOpenObligations(ctx, np.Student)
		if err != nil {
			return Payment{}, false, err
		}
		if len(obs) == 0 {
			return Payment{}, false, ErrNothingToAllocate
		}

		currency := np.Currency
		if currency == "" {
			currency = lo.Ternary(obs[0].Currency != "", obs[0].Currency, svc.currency)
		}
		pmt = Payment{
			ID:          uuid.New().String(),
			Reference:   np.Reference,
			Student:     np.Student,
			Amount:      np.Amount,
			Currency:    currency,
			Source:      np.Source,
			Allocations: Cascade(obs, np.Amount),
			CreatedAt:   time.Now().UTC(),
		}

		saved, err := svc.repo.SavePayment(ctx, pmt)
		switch errors.Cause(err) {
		case nil:
			svc.logger.Info("payment allocated", map[string]interface{}{
				"reference":   saved.Reference,
				"student":     saved.Student,
				"amount":      saved.Amount.StringFixed(2),
				"allocations": len(saved.Allocations),
				"unallocated": saved.Unallocated().StringFixed(2),
			})
			return saved, true, nil
		case ErrDuplicatePayment:
			// stored concurrently
			stored, gerr := svc.repo.GetPayment(ctx, np.Reference)
			if gerr != nil {
				return Payment{}, false, gerr
			}
			return stored, false, nil
		case ErrStaleObligation:
			svc.logger.Warn("payment allocation retried", map[string]interface{}{"reference": np.Reference, "attempt": attempt})
			continue
		default:
			return Payment{}, false, err
		}
	}
	return Payment{}, false, errors.Wrapf(ErrStaleObligation, "allocating payment %q", np.Reference)
}

// IssueSchedule stores one obligation per installment of plan. Installments without a
// positive amount owe nothing and are skipped.
func (svc *Service) IssueSchedule(ctx context.Context, student, program, currency string, plan fee.Plan) ([]Obligation, error) {
	student = core.CleanString(student)
	if student == "" {
		return nil, validationErr("student", "student is required")
	}
	currency = strings.ToUpper(core.CleanString(currency))
	if currency == "" {
		currency = svc.currency
	}

	now := time.Now().UTC()
	obs := make([]Obligation, 0, len(plan.Installments))
	for _, inst := range plan.Installments {
		if !inst.Amount.IsPositive() {
			continue
		}
		obs = append(obs, Obligation{
			ID:          uuid.New().String(),
			Student:     student,
			Description: inst.Label,
			Program:     core.CleanString(program),
			DueDate:     inst.DueDate,
			Amount:      inst.Amount,
			Outstanding: inst.Amount,
			Currency:    currency,
			CreatedAt:   now,
		})
	}
	if len(obs) == 0 {
		return nil, validationErr("installments", "the plan has nothing to bill")
	}
	return svc.repo.CreateObligations(ctx, obs)
}

// CreateIntent starts a card payment on an obligation of the student, for its outstanding
// balance unless an amount is given. The amount may exceed the obligation: the payment
// cascades over the student's other obligations once settled.
func (svc *Service) CreateIntent(ctx context.Context, req IntentRequest) (IntentResult, error) {
	if svc.gateway == nil {
		return IntentResult{}, core.NewConfigError("stripe.secretKey")
	}
	ob, err := svc.repo.GetObligation(ctx, core.CleanString(req.ObligationID))
	if err != nil {
		return IntentResult{}, err
	}
	if ob.Student != core.CleanString(req.Student) {
		return IntentResult{}, ErrObligationNotFound
	}
	if !ob.Outstanding.IsPositive() {
		return IntentResult{}, validationErr("obligation_id", "this obligation has no outstanding amount to pay")
	}

	amount := ob.Outstanding
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return IntentResult{}, validationErr("amount", "amount must be greater than zero")
	}
	cents := amount.Shift(2).Round(0).IntPart()
	if cents < minIntentCents {
		return IntentResult{}, validationErr("amount", "amount too small (minimum 0.50)")
	}

	// previewed on the amount actually charged
	breakdown, err := svc.Breakdown(ctx, ob.Student, decimal.New(cents, -2))
	if err != nil {
		return IntentResult{}, err
	}

	currency := lo.Ternary(ob.Currency != "", ob.Currency, svc.currency)
	intent, err := svc.gateway.CreateIntent(ctx, NewIntent{
		AmountCents: cents,
		Currency:    strings.ToLower(currency),
		Metadata:    map[string]string{"student": ob.Student, "obligation": ob.ID},
	})
	if err != nil {
		return IntentResult{}, errors.Wrap(err, "creating payment intent")
	}
	svc.logger.Info("payment intent created", map[string]interface{}{"intent": intent.ID, "student": ob.Student, "cents": cents})

	return IntentResult{
		ClientSecret:   intent.ClientSecret,
		IntentID:       intent.ID,
		PublishableKey: svc.publishableKey,
		Amount:         decimal.New(cents, -2),
		Currency:       currency,
		Breakdown:      breakdown,
	}, nil
}

// ParseEvent verifies a gateway webhook payload.
func (svc *Service) ParseEvent(payload []byte, signature string) (Event, error) {
	if svc.gateway == nil {
		return Event{}, core.NewConfigError("stripe.webhookSecret")
	}
	return svc.gateway.ParseEvent(payload, signature)
}

// HandleEvent settles the payment of a succeeded payment intent. Other events are ignored.
func (svc *Service) HandleEvent(ctx context.Context, ev Event) error {
	if ev.Type != EventPaymentSucceeded {
		svc.logger.Debug("payment event ignored", map[string]interface{}{"id": ev.ID, "type": ev.Type})
		return nil
	}
	if ev.Intent == nil || ev.Intent.ID == "" {
		return core.NewDataError("payment_intent", "event carries no payment intent")
	}
	student := core.CleanString(ev.Intent.Metadata["student"])
	if student == "" {
		return core.NewDataError("metadata.student", "payment intent "+ev.Intent.ID+" has no student metadata")
	}

	cents := ev.Intent.AmountReceived
	if cents == 0 {
		cents = ev.Intent.Amount
	}
	_, _, err := svc.AllocatePayment(ctx, NewPayment{
		Reference: ev.Intent.ID,
		Student:   student,
		Amount:    decimal.New(cents, -2),
		Currency:  ev.Intent.Currency,
		Source:    SourceStripe,
	})
	return err
}

// CollectionReport returns the fee collection status of students, or of every student
// with obligations when none is given.
func (svc *Service) CollectionReport(ctx context.Context, students ...string) ([]CollectionRow, error) {
	students = lo.Uniq(lo.Compact(lo.Map(students, func(s string, _ int) string { return core.CleanString(s) })))
	return svc.repo.CollectionSummary(ctx, students...)
}
