package fee

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
)

var ErrUnknownPlan = errors.New("unknown fee plan")

// AllocateComponents splits every installment across the original components in
// proportion to their share of distTotal. Each share is rounded to cents and the rounding
// residual of an installment goes to its last share, so that the shares of an installment
// always add up to the installment amount.
func AllocateComponents(components []Component, distTotal decimal.Decimal, installments []Installment) ([][]ComponentShare, error) {
	if len(components) == 0 {
		return nil, core.NewValidationError(ErrNoComponents, core.FieldError{Field: "components", Error: ErrNoComponents.Error()})
	}
	if distTotal.IsZero() {
		return nil, core.NewValidationError(ErrZeroTotal, core.FieldError{Field: "total", Error: ErrZeroTotal.Error()})
	}

	rows := make([][]ComponentShare, 0, len(installments))
	for _, inst := range installments {
		ratio := inst.Amount.Div(distTotal)
		shares := make([]ComponentShare, 0, len(components))
		allocated := decimal.Zero
		for _, c := range components {
			amount := round2(EffectiveAmount(c).Mul(ratio))
			allocated = allocated.Add(amount)
			shares = append(shares, ComponentShare{
				Installment: inst.Sequence,
				Category:    c.Category,
				Description: c.Description,
				Amount:      amount,
			})
		}
		if residual := inst.Amount.Sub(allocated); !residual.IsZero() {
			last := &shares[len(shares)-1]
			last.Amount = last.Amount.Add(residual)
		}
		rows = append(rows, shares)
	}
	return rows, nil
}

// PlanDistribution spreads the components evenly over the due dates of a periodic fee plan.
func PlanDistribution(req DistributionRequest) (Distribution, error) {
	gap, ok := planGaps[req.Plan]
	if !ok {
		return Distribution{}, core.NewValidationError(ErrUnknownPlan, core.FieldError{Field: "fee_plan", Error: ErrUnknownPlan.Error()})
	}
	if len(req.Components) == 0 {
		return Distribution{}, core.NewValidationError(ErrNoComponents, core.FieldError{Field: "components", Error: ErrNoComponents.Error()})
	}
	frequency := planFrequencies[req.Plan]
	periods := decimal.NewFromInt(int64(frequency))

	perComponent := make(map[string]decimal.Decimal, len(req.Components))
	amount := decimal.Zero
	for _, c := range req.Components {
		share := round2(EffectiveAmount(c).Div(periods))
		perComponent[c.Category] = perComponent[c.Category].Add(share)
		amount = amount.Add(share)
	}

	start := truncateDay(req.StartDate)
	dues := make([]DueAmount, 0, frequency)
	for i := 1; i <= frequency; i++ {
		dues = append(dues, DueAmount{DueDate: AddMonths(start, gap*i), Amount: amount})
	}
	if residual := ComponentsTotal(req.Components).Sub(amount.Mul(periods)); !residual.IsZero() {
		last := &dues[len(dues)-1]
		last.Amount = last.Amount.Add(residual)
	}

	return Distribution{Plan: req.Plan, Dues: dues, PerComponent: perComponent}, nil
}

// ValidateDueDates rejects due dates before today, naming the 1-based row.
func ValidateDueDates(dates []time.Time, today time.Time) error {
	today = truncateDay(today)
	for i, d := range dates {
		if truncateDay(d).Before(today) {
			msg := fmt.Sprintf("due date in row %d should be greater than or same as today's date", i+1)
			return core.NewValidationError(errors.New(msg), core.FieldError{Field: "due_date", Error: msg})
		}
	}
	return nil
}
