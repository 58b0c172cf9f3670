package fee

import (
	"time"

	"github.com/shopspring/decimal"
)

// Component categories handled separately by the schedule; any other category is capital.
const (
	CategoryEnrollment  = "Inscripción"
	CategoryTranslation = "Traducción y equivalencia"
	CategoryGraduation  = "Graduación"
)

const (
	// MinInstallments is the smallest plan: enrollment, translation and one capital installment.
	MinInstallments = 3
)

var (
	// MonthlyInterestRate is applied to capital when a plan is financed.
	MonthlyInterestRate = decimal.RequireFromString("0.0103")

	// TotalTolerance is the accepted gap between a plan's total and the sum of its components.
	TotalTolerance = decimal.NewFromInt(1)
)

type Kind string

const (
	KindEnrollment            Kind = "enrollment"
	KindTranslation           Kind = "translation"
	KindCapital               Kind = "capital"
	KindCapitalPlusGraduation Kind = "capital_plus_graduation"
)

type (
	Component struct {
		Category    string          `json:"category" validate:"required"`
		Description string          `json:"description,omitempty"`
		Amount      decimal.Decimal `json:"amount"`
		Discount    decimal.Decimal `json:"discount" validate:"gte=0,lte=100"` // percent
	}

	PlanRequest struct {
		Total            decimal.Decimal `json:"total"`
		Components       []Component     `json:"components" validate:"required,min=1,dive"`
		InstallmentCount int             `json:"installment_count" validate:"gte=1"`
		ApplyInterest    bool            `json:"apply_interest"`
		StartDate        time.Time       `json:"start_date" validate:"required"`
	}

	Installment struct {
		Sequence int             `json:"sequence"`
		Label    string          `json:"label"`
		DueDate  time.Time       `json:"due_date"`
		Amount   decimal.Decimal `json:"amount"`
		Kind     Kind            `json:"kind"`
	}

	Plan struct {
		Installments []Installment   `json:"installments"`
		Capital      decimal.Decimal `json:"capital"`
		Monthly      decimal.Decimal `json:"monthly"`
		Interest     decimal.Decimal `json:"interest"`
		Total        decimal.Decimal `json:"total"`
		// Residual is the rounding difference added to the final installment.
		Residual     decimal.Decimal `json:"residual"`
	}

	ComponentShare struct {
		Installment int             `json:"installment"`
		Category    string          `json:"category"`
		Description string          `json:"description,omitempty"`
		Amount      decimal.Decimal `json:"amount"`
	}

	// breakdown is a plan's components classified by how the schedule treats them.
	breakdown struct {
		enrollment  decimal.Decimal
		translation decimal.Decimal
		graduation  decimal.Decimal
		capital     decimal.Decimal
	}
)

// FeePlan is a periodic payment plan.
type FeePlan string

const (
	PlanMonthly      FeePlan = "Monthly"
	PlanQuarterly    FeePlan = "Quarterly"
	PlanSemiAnnually FeePlan = "Semi-Annually"
	PlanAnnually     FeePlan = "Annually"
)

var (
	planGaps        = map[FeePlan]int{PlanMonthly: 1, PlanQuarterly: 3, PlanSemiAnnually: 6, PlanAnnually: 12}
	planFrequencies = map[FeePlan]int{PlanMonthly: 12, PlanQuarterly: 4, PlanSemiAnnually: 2, PlanAnnually: 1}
)

type (
	DistributionRequest struct {
		Plan       FeePlan     `json:"fee_plan" validate:"required,feeplan"`
		Components []Component `json:"components" validate:"required,min=1,dive"`
		StartDate  time.Time   `json:"start_date" validate:"required"`
	}

	DueAmount struct {
		DueDate time.Time       `json:"due_date"`
		Amount  decimal.Decimal `json:"amount"`
	}

	Distribution struct {
		Plan         FeePlan                    `json:"fee_plan"`
		Dues         []DueAmount                `json:"distribution"`
		PerComponent map[string]decimal.Decimal `json:"per_component_amount"`
	}
)
