package payment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
)

// Payment sources
const (
	SourceStripe = "stripe"
	SourceManual = "manual"
)

// EventPaymentSucceeded is the only processed gateway event.
const EventPaymentSucceeded = "payment_intent.succeeded"

// Obligation is an amount a student owes by a due date.
type Obligation struct {
	ID          string          `json:"id"`
	Student     string          `json:"student"`
	Description string          `json:"description"`
	Program     string          `json:"program,omitempty"`
	DueDate     time.Time       `json:"due_date"`
	Amount      decimal.Decimal `json:"amount"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
}

// Allocation is the part of a payment applied to one obligation.
type Allocation struct {
	ID           string          `json:"id,omitempty"`
	ObligationID string          `json:"obligation_id"`
	Description  string          `json:"description,omitempty"`
	Program      string          `json:"program,omitempty"`
	DueDate      time.Time       `json:"due_date"`
	Outstanding  decimal.Decimal `json:"outstanding"` // before the allocation
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// Payment is a settled payment. It is immutable once stored.
type Payment struct {
	ID          string          `json:"id"`
	Reference   string          `json:"reference"`
	Student     string          `json:"student"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Source      string          `json:"source"`
	Allocations []Allocation    `json:"allocations"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
}

// Allocated is the part of the payment applied to obligations.
func (p Payment) Allocated() decimal.Decimal {
	return sumAllocations(p.Allocations)
}

// Unallocated is the part of the payment exceeding the student's open obligations.
func (p Payment) Unallocated() decimal.Decimal {
	return p.Amount.Sub(p.Allocated())
}

type NewPayment struct {
	// Reference is the idempotency key of the payment.
	Reference string          `json:"reference" validate:"required"`
	Student   string          `json:"-"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	Source    string          `json:"-"`
}

func (np *NewPayment) Clean() {
	np.Reference = core.CleanString(np.Reference)
	np.Student = core.CleanString(np.Student)
	np.Currency = strings.ToUpper(core.CleanString(np.Currency))
	if np.Source == "" {
		np.Source = SourceManual
	}
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Clean()
	return validate.Struct(np)
}

type IntentRequest struct {
	Student      string           `json:"-"`
	ObligationID string           `json:"obligation_id" validate:"required"`
	Amount       *decimal.Decimal `json:"amount"`
}

func (r *IntentRequest) Validate(validate *validator.Validate) error {
	r.ObligationID = core.CleanString(r.ObligationID)
	return validate.Struct(r)
}

// NewIntent is a charge to start with the payment gateway.
type NewIntent struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type IntentResult struct {
	ClientSecret   string          `json:"client_secret"`
	IntentID       string          `json:"payment_intent_id"`
	PublishableKey string          `json:"publishable_key"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Breakdown      []Allocation    `json:"cascade_breakdown"`
}

// Event is a verified payment gateway event.
type Event struct {
	ID     string
	Type   string
	Intent *IntentData
}

type IntentData struct {
	ID             string
	Amount         int64 // cents
	AmountReceived int64 // cents
	Currency       string
	Metadata       map[string]string
}

// CollectionRow is the fee collection status of a student.
type CollectionRow struct {
	Student     string          `json:"student" db:"student"`
	GrandTotal  decimal.Decimal `json:"grand_total" db:"grand_total"`
	Paid        decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	Outstanding decimal.Decimal `json:"outstanding_amount" db:"outstanding_amount"`
}
