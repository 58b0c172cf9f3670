package fee

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
)

var (
	ErrNoComponents = errors.New("at least one fee component is required")
	ErrZeroTotal    = errors.New("distribution total cannot be zero")
)

// ComputePlan builds the installment schedule of a fee total.
//
// Installment 1 carries the enrollment fee and installment 2 the translation fee; the
// remaining installments amortize the capital, with or without interest, and the last one
// also carries the graduation fee. Due dates are one month apart starting one month after
// req.StartDate. Amounts are rounded to cents and the rounding residual goes to the final
// installment so that the schedule adds up to the plan total.
func ComputePlan(req PlanRequest) (Plan, error) {
	if len(req.Components) == 0 {
		return Plan{}, core.NewValidationError(ErrNoComponents, core.FieldError{Field: "components", Error: ErrNoComponents.Error()})
	}

	count := req.InstallmentCount
	if count < MinInstallments {
		count = MinInstallments
	}
	n := count - 2

	bd := classify(req.Components)
	monthly, interest := amortize(bd.capital, n, req.ApplyInterest)

	start := truncateDay(req.StartDate)
	installments := make([]Installment, 0, count)
	installments = append(installments,
		Installment{
			Sequence: 1,
			Label:    label(1, count, CategoryEnrollment),
			DueDate:  AddMonths(start, 1),
			Amount:   round2(bd.enrollment),
			Kind:     KindEnrollment,
		},
		Installment{
			Sequence: 2,
			Label:    label(2, count, CategoryTranslation),
			DueDate:  AddMonths(start, 2),
			Amount:   round2(bd.translation),
			Kind:     KindTranslation,
		},
	)
	for i := 1; i <= n; i++ {
		inst := Installment{
			Sequence: 2 + i,
			Label:    label(2+i, count, "Capital"),
			DueDate:  AddMonths(start, 2+i),
			Amount:   round2(monthly),
			Kind:     KindCapital,
		}
		if i == n {
			inst.Label = label(2+i, count, "Capital + "+CategoryGraduation)
			inst.Amount = round2(monthly.Add(bd.graduation))
			inst.Kind = KindCapitalPlusGraduation
		}
		installments = append(installments, inst)
	}

	// reconcile the rounding drift on the final installment
	expected := round2(bd.enrollment.Add(bd.translation).Add(bd.graduation).Add(monthly.Mul(decimal.NewFromInt(int64(n)))))
	residual := expected.Sub(sumInstallments(installments))
	if !residual.IsZero() {
		last := &installments[len(installments)-1]
		last.Amount = last.Amount.Add(residual)
	}

	return Plan{
		Installments: installments,
		Capital:      bd.capital,
		Monthly:      round2(monthly),
		Interest:     round2(interest),
		Total:        sumInstallments(installments),
		Residual:     residual,
	}, nil
}

func classify(components []Component) breakdown {
	var bd breakdown
	for _, c := range components {
		amount := EffectiveAmount(c)
		switch core.CleanString(c.Category) {
		case CategoryEnrollment:
			bd.enrollment = bd.enrollment.Add(amount)
		case CategoryTranslation:
			bd.translation = bd.translation.Add(amount)
		case CategoryGraduation:
			bd.graduation = bd.graduation.Add(amount)
		default:
			bd.capital = bd.capital.Add(amount)
		}
	}
	return bd
}

// amortize returns the per-installment capital payment over n installments and the
// interest it generates. Negative capital (a credit) is spread without interest.
func amortize(capital decimal.Decimal, n int, applyInterest bool) (monthly, interest decimal.Decimal) {
	if capital.IsZero() || n <= 0 {
		return capital, decimal.Zero
	}
	periods := decimal.NewFromInt(int64(n))
	if !applyInterest || capital.IsNegative() {
		return capital.Div(periods), decimal.Zero
	}

	r := MonthlyInterestRate
	growth := decimal.NewFromInt(1).Add(r).Pow(periods) // (1+r)^n
	denominator := growth.Sub(decimal.NewFromInt(1))
	if denominator.IsZero() {
		return capital, decimal.Zero
	}
	monthly = capital.Mul(r.Mul(growth)).Div(denominator)

	interest = monthly.Mul(periods).Sub(capital)
	if interest.IsNegative() {
		interest = decimal.Zero
	}
	return monthly, interest
}

// EffectiveAmount is a component's amount net of its percentage discount.
func EffectiveAmount(c Component) decimal.Decimal {
	if c.Discount.IsZero() {
		return c.Amount
	}
	return c.Amount.Sub(c.Amount.Mul(c.Discount).Div(decimal.NewFromInt(100)))
}

// ComponentsTotal is the sum of the effective amounts of components.
func ComponentsTotal(components []Component) decimal.Decimal {
	return lo.Reduce(components, func(sum decimal.Decimal, c Component, _ int) decimal.Decimal {
		return sum.Add(EffectiveAmount(c))
	}, decimal.Zero)
}

// AddMonths adds months to t, clamping the day to the end of the target month.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func sumInstallments(installments []Installment) decimal.Decimal {
	return lo.Reduce(installments, func(sum decimal.Decimal, inst Installment, _ int) decimal.Decimal {
		return sum.Add(inst.Amount)
	}, decimal.Zero)
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func label(seq, count int, name string) string {
	return fmt.Sprintf("%d/%d %s", seq, count, name)
}
