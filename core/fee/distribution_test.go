package fee

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtools/edcore/core"
)

func TestAllocateComponents(t *testing.T) {
	components := []Component{
		{Category: "A", Amount: dec("1")},
		{Category: "B", Amount: dec("1")},
		{Category: "C", Amount: dec("1")},
	}
	rows, err := AllocateComponents(components, dec("3"), []Installment{{Sequence: 1, Amount: dec("1")}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var got []string
	for _, share := range rows[0] {
		assert.Equal(t, 1, share.Installment)
		got = append(got, share.Amount.StringFixed(2))
	}
	assert.Equal(t, []string{"0.33", "0.33", "0.34"}, got)
}

func TestAllocateComponents_rowsMatchInstallments(t *testing.T) {
	for _, interest := range []bool{false, true} {
		req := PlanRequest{
			Components:       programComponents(),
			InstallmentCount: 12,
			ApplyInterest:    interest,
			StartDate:        date("2026-01-01"),
		}
		plan, err := ComputePlan(req)
		require.NoError(t, err)

		rows, err := AllocateComponents(req.Components, ComponentsTotal(req.Components), plan.Installments)
		require.NoError(t, err)
		require.Len(t, rows, len(plan.Installments))

		for i, row := range rows {
			sum := decimal.Zero
			for _, share := range row {
				sum = sum.Add(share.Amount)
			}
			assert.True(t, sum.Equal(plan.Installments[i].Amount), "installment %d: %s != %s", i+1, sum, plan.Installments[i].Amount)
		}
	}
}

func TestAllocateComponents_errors(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
		total      decimal.Decimal
		want       error
	}{
		{name: "no components", total: dec("10"), want: ErrNoComponents},
		{name: "zero total", components: []Component{{Category: "A", Amount: dec("1")}}, total: decimal.Zero, want: ErrZeroTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AllocateComponents(tt.components, tt.total, []Installment{{Sequence: 1, Amount: dec("1")}})
			verr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("AllocateComponents() error = %v, want *core.ValidationError", err)
			}
			assert.Equal(t, tt.want, verr.Err)
		})
	}
}

func TestPlanDistribution(t *testing.T) {
	tests := []struct {
		name       string
		req        DistributionRequest
		wantDates  []string
		wantAmount []string
		wantShares map[string]string
	}{
		{
			name: "quarterly",
			req: DistributionRequest{
				Plan: PlanQuarterly,
				Components: []Component{
					{Category: "Tuition", Amount: dec("1000")},
					{Category: "Lab", Amount: dec("100")},
				},
				StartDate: date("2026-01-15"),
			},
			wantDates:  []string{"2026-04-15", "2026-07-15", "2026-10-15", "2027-01-15"},
			wantAmount: []string{"275.00", "275.00", "275.00", "275.00"},
			wantShares: map[string]string{"Tuition": "250.00", "Lab": "25.00"},
		},
		{
			name: "annually with discount",
			req: DistributionRequest{
				Plan:       PlanAnnually,
				Components: []Component{{Category: "Tuition", Amount: dec("1000"), Discount: dec("10")}},
				StartDate:  date("2026-03-31"),
			},
			wantDates:  []string{"2027-03-31"},
			wantAmount: []string{"900.00"},
			wantShares: map[string]string{"Tuition": "900.00"},
		},
		{
			name: "monthly residual on the last due",
			req: DistributionRequest{
				Plan:       PlanMonthly,
				Components: []Component{{Category: "Tuition", Amount: dec("1000")}},
				StartDate:  date("2026-01-31"),
			},
			wantDates: []string{
				"2026-02-28", "2026-03-31", "2026-04-30", "2026-05-31", "2026-06-30", "2026-07-31",
				"2026-08-31", "2026-09-30", "2026-10-31", "2026-11-30", "2026-12-31", "2027-01-31",
			},
			wantAmount: []string{
				"83.33", "83.33", "83.33", "83.33", "83.33", "83.33",
				"83.33", "83.33", "83.33", "83.33", "83.33", "83.37",
			},
			wantShares: map[string]string{"Tuition": "83.33"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := PlanDistribution(tt.req)
			require.NoError(t, err)

			var dates, amounts []string
			for _, due := range dist.Dues {
				dates = append(dates, due.DueDate.Format("2006-01-02"))
				amounts = append(amounts, due.Amount.StringFixed(2))
			}
			assert.Equal(t, tt.wantDates, dates)
			assert.Equal(t, tt.wantAmount, amounts)

			shares := make(map[string]string, len(dist.PerComponent))
			for k, v := range dist.PerComponent {
				shares[k] = v.StringFixed(2)
			}
			assert.Equal(t, tt.wantShares, shares)
		})
	}
}

func TestPlanDistribution_unknownPlan(t *testing.T) {
	_, err := PlanDistribution(DistributionRequest{Plan: "Weekly", Components: []Component{{Category: "A", Amount: dec("1")}}})
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownPlan, verr.Err)
}

func TestValidateDueDates(t *testing.T) {
	today := date("2026-05-10")
	tests := []struct {
		name    string
		dates   []string
		wantErr string
	}{
		{name: "today and later", dates: []string{"2026-05-10", "2026-06-01"}},
		{name: "past row", dates: []string{"2026-06-01", "2026-05-09"}, wantErr: "due date in row 2 should be greater than or same as today's date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dates []time.Time
			for _, d := range tt.dates {
				dates = append(dates, date(d))
			}
			err := ValidateDueDates(dates, today)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestPlanRequest_Validate(t *testing.T) {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)

	tests := []struct {
		name      string
		req       PlanRequest
		wantField string
	}{
		{
			name: "valid",
			req:  PlanRequest{Total: dec("10000"), Components: programComponents(), InstallmentCount: 12, StartDate: date("2026-01-01")},
		},
		{
			name: "total within tolerance",
			req:  PlanRequest{Total: dec("10000.90"), Components: programComponents(), InstallmentCount: 12, StartDate: date("2026-01-01")},
		},
		{
			name:      "total mismatch",
			req:       PlanRequest{Total: dec("10002"), Components: programComponents(), InstallmentCount: 12, StartDate: date("2026-01-01")},
			wantField: "total",
		},
		{
			name:      "no components",
			req:       PlanRequest{InstallmentCount: 12, StartDate: date("2026-01-01")},
			wantField: "components",
		},
		{
			name: "discount out of range",
			req: PlanRequest{
				Components:       []Component{{Category: "A", Amount: dec("10"), Discount: dec("120")}},
				InstallmentCount: 12,
				StartDate:        date("2026-01-01"),
			},
			wantField: "discount",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			verrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "error = %v", err)
			assert.Equal(t, tt.wantField, verrs[0].Field())
		})
	}
}
