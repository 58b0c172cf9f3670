package fee

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtools/edcore/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func programComponents() []Component {
	return []Component{
		{Category: CategoryEnrollment, Amount: dec("100")},
		{Category: CategoryTranslation, Amount: dec("200")},
		{Category: "Costo de programa", Amount: dec("9500")},
		{Category: CategoryGraduation, Amount: dec("200")},
	}
}

func amounts(plan Plan) []string {
	out := make([]string, 0, len(plan.Installments))
	for _, inst := range plan.Installments {
		out = append(out, inst.Amount.StringFixed(2))
	}
	return out
}

func TestComputePlan_withoutInterest(t *testing.T) {
	plan, err := ComputePlan(PlanRequest{
		Total:            dec("10000"),
		Components:       programComponents(),
		InstallmentCount: 12,
		StartDate:        date("2026-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, plan.Installments, 12)

	want := []string{"100.00", "200.00"}
	for i := 0; i < 9; i++ {
		want = append(want, "950.00")
	}
	want = append(want, "1150.00")
	assert.Equal(t, want, amounts(plan))

	first, second, last := plan.Installments[0], plan.Installments[1], plan.Installments[11]
	assert.Equal(t, KindEnrollment, first.Kind)
	assert.Equal(t, date("2026-02-01"), first.DueDate)
	assert.Equal(t, KindTranslation, second.Kind)
	assert.Equal(t, date("2026-03-01"), second.DueDate)
	assert.Equal(t, KindCapitalPlusGraduation, last.Kind)
	assert.Equal(t, date("2027-01-01"), last.DueDate)
	for _, inst := range plan.Installments[2:11] {
		assert.Equal(t, KindCapital, inst.Kind)
	}

	assert.True(t, plan.Total.Equal(dec("10000")), "total = %s", plan.Total)
	assert.True(t, plan.Interest.IsZero())
	assert.True(t, plan.Residual.IsZero())
	assert.True(t, plan.Monthly.Equal(dec("950")))
}

func TestComputePlan_withInterest(t *testing.T) {
	plan, err := ComputePlan(PlanRequest{
		Total:            dec("10000"),
		Components:       programComponents(),
		InstallmentCount: 12,
		ApplyInterest:    true,
		StartDate:        date("2026-01-01"),
	})
	require.NoError(t, err)

	want := []string{"100.00", "200.00"}
	for i := 0; i < 9; i++ {
		want = append(want, "1004.64")
	}
	want = append(want, "1204.69") // 1004.64 + 200 graduation + 0.05 rounding residual
	assert.Equal(t, want, amounts(plan))

	assert.Equal(t, "1004.64", plan.Monthly.StringFixed(2))
	assert.Equal(t, "546.45", plan.Interest.StringFixed(2))
	assert.Equal(t, "0.05", plan.Residual.StringFixed(2))
	assert.Equal(t, "10546.45", plan.Total.StringFixed(2))

	// interest is never negative: monthly * n >= capital
	assert.True(t, plan.Monthly.Mul(decimal.NewFromInt(10)).GreaterThanOrEqual(plan.Capital))
}

func TestComputePlan(t *testing.T) {
	tests := []struct {
		name      string
		req       PlanRequest
		wantCount int
		want      []string
		wantTotal string
	}{
		{
			name: "count below minimum is clamped",
			req: PlanRequest{
				Components:       []Component{{Category: "Matrícula", Amount: dec("900")}},
				InstallmentCount: 1,
				StartDate:        date("2026-01-01"),
			},
			wantCount: 3,
			want:      []string{"0.00", "0.00", "900.00"},
			wantTotal: "900.00",
		},
		{
			name: "rounding residual goes to the final installment",
			req: PlanRequest{
				Components:       []Component{{Category: "Colegiatura", Amount: dec("1000")}},
				InstallmentCount: 5,
				StartDate:        date("2026-01-01"),
			},
			wantCount: 5,
			want:      []string{"0.00", "0.00", "333.33", "333.33", "333.34"},
			wantTotal: "1000.00",
		},
		{
			name: "negative capital is spread without interest",
			req: PlanRequest{
				Components: []Component{
					{Category: CategoryEnrollment, Amount: dec("100")},
					{Category: "Beca", Amount: dec("-300")},
				},
				InstallmentCount: 5,
				ApplyInterest:    true,
				StartDate:        date("2026-01-01"),
			},
			wantCount: 5,
			want:      []string{"100.00", "0.00", "-100.00", "-100.00", "-100.00"},
			wantTotal: "-200.00",
		},
		{
			name: "discounted components",
			req: PlanRequest{
				Components: []Component{
					{Category: CategoryEnrollment, Amount: dec("200"), Discount: dec("50")},
					{Category: "Colegiatura", Amount: dec("1200"), Discount: dec("25")},
				},
				InstallmentCount: 5,
				StartDate:        date("2026-01-01"),
			},
			wantCount: 5,
			want:      []string{"100.00", "0.00", "300.00", "300.00", "300.00"},
			wantTotal: "1000.00",
		},
		{
			name: "no capital",
			req: PlanRequest{
				Components: []Component{
					{Category: CategoryEnrollment, Amount: dec("100")},
					{Category: CategoryGraduation, Amount: dec("50")},
				},
				InstallmentCount: 4,
				ApplyInterest:    true,
				StartDate:        date("2026-01-01"),
			},
			wantCount: 4,
			want:      []string{"100.00", "0.00", "0.00", "50.00"},
			wantTotal: "150.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ComputePlan(tt.req)
			if err != nil {
				t.Fatalf("ComputePlan() error = %v", err)
			}
			if len(plan.Installments) != tt.wantCount {
				t.Errorf("ComputePlan() installments = %d, want %d", len(plan.Installments), tt.wantCount)
			}
			assert.Equal(t, tt.want, amounts(plan))
			if got := plan.Total.StringFixed(2); got != tt.wantTotal {
				t.Errorf("ComputePlan() total = %v, want %v", got, tt.wantTotal)
			}
		})
	}
}

func TestComputePlan_noComponents(t *testing.T) {
	_, err := ComputePlan(PlanRequest{InstallmentCount: 12})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("ComputePlan() error = %v, want *core.ValidationError", err)
	}
}

func TestComputePlan_totalWithinTolerance(t *testing.T) {
	for count := 3; count <= 60; count++ {
		for _, interest := range []bool{false, true} {
			plan, err := ComputePlan(PlanRequest{
				Components: []Component{
					{Category: CategoryEnrollment, Amount: dec("150.55")},
					{Category: CategoryTranslation, Amount: dec("99.99")},
					{Category: "Costo de programa", Amount: dec("12345.67")},
					{Category: CategoryGraduation, Amount: dec("310.10")},
				},
				InstallmentCount: count,
				ApplyInterest:    interest,
				StartDate:        date("2026-01-31"),
			})
			require.NoError(t, err)

			sum := sumInstallments(plan.Installments)
			assert.True(t, sum.Equal(plan.Total))
			n := decimal.NewFromInt(int64(count - 2))
			if interest {
				assert.True(t, plan.Interest.IsPositive(), "count=%d", count)
			} else {
				assert.Equal(t, "12906.31", sum.StringFixed(2), "count=%d", count)
				drift := plan.Monthly.Mul(n).Sub(plan.Capital).Abs()
				assert.True(t, drift.LessThanOrEqual(dec("0.01").Mul(n)), "count=%d drift=%s", count, drift)
			}
			tolerance := dec("0.01").Mul(decimal.NewFromInt(int64(count)))
			assert.True(t, plan.Residual.Abs().LessThanOrEqual(tolerance), "count=%d residual=%s", count, plan.Residual)
		}
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		start  string
		months int
		want   string
	}{
		{"2026-01-01", 1, "2026-02-01"},
		{"2026-01-31", 1, "2026-02-28"},
		{"2028-01-31", 1, "2028-02-29"},
		{"2026-08-31", 3, "2026-11-30"},
		{"2026-11-15", 14, "2028-01-15"},
	}
	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			if got := AddMonths(date(tt.start), tt.months); !got.Equal(date(tt.want)) {
				t.Errorf("AddMonths() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveAmount(t *testing.T) {
	tests := []struct {
		name string
		c    Component
		want string
	}{
		{name: "no discount", c: Component{Amount: dec("100")}, want: "100.00"},
		{name: "partial discount", c: Component{Amount: dec("100"), Discount: dec("12.5")}, want: "87.50"},
		{name: "full discount", c: Component{Amount: dec("100"), Discount: dec("100")}, want: "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveAmount(tt.c).StringFixed(2); got != tt.want {
				t.Errorf("EffectiveAmount() = %v, want %v", got, tt.want)
			}
		})
	}
}
