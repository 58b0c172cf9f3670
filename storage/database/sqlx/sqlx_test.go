package sqlxrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
	"github.com/edtools/edcore/storage/database"
	sqlxrepos "github.com/edtools/edcore/storage/database/sqlx"
)

var ctx = context.Background()

// prepareDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func prepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB))
	_, err = db.Exec(`TRUNCATE payment_allocations, payments, obligations, operators`)
	require.NoError(t, err)
	return db
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func obligation(id, student, due string, amount int64) payment.Obligation {
	return payment.Obligation{
		ID:          id,
		Student:     student,
		Description: "Cuota " + due,
		DueDate:     day(due),
		Amount:      decimal.NewFromInt(amount),
		Outstanding: decimal.NewFromInt(amount),
		Currency:    "USD",
	}
}

const (
	ob1 = "00000000-0000-0000-0000-000000000001"
	ob2 = "00000000-0000-0000-0000-000000000002"
	ob3 = "00000000-0000-0000-0000-000000000003"
)

func TestPaymentRepository(t *testing.T) {
	db := prepareDB(t)
	repo := sqlxrepos.NewPaymentRepository(db)

	_, err := repo.CreateObligations(ctx, []payment.Obligation{
		obligation(ob2, "ST-1", "2026-03-01", 200),
		obligation(ob1, "ST-1", "2026-02-01", 100),
		obligation(ob3, "ST-2", "2026-02-01", 50),
	})
	require.NoError(t, err)

	open, err := repo.QueryOpenObligations(ctx, "ST-1")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, ob1, open[0].ID)
	assert.Equal(t, ob2, open[1].ID)

	_, err = repo.GetObligation(ctx, "not-a-uuid")
	assert.Equal(t, payment.ErrObligationNotFound, err)

	pmt := payment.Payment{
		Reference:   "pi_1",
		Student:     "ST-1",
		Amount:      decimal.NewFromInt(150),
		Currency:    "USD",
		Source:      payment.SourceStripe,
		Allocations: payment.Cascade(open, decimal.NewFromInt(150)),
	}
	saved, err := repo.SavePayment(ctx, pmt)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	stored, err := repo.GetPayment(ctx, "pi_1")
	require.NoError(t, err)
	require.Len(t, stored.Allocations, 2)
	assert.Equal(t, ob1, stored.Allocations[0].ObligationID)
	assert.True(t, decimal.NewFromInt(100).Equal(stored.Allocations[0].Amount))
	assert.True(t, decimal.NewFromInt(50).Equal(stored.Allocations[1].Amount))

	ob, err := repo.GetObligation(ctx, ob2)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(ob.Outstanding))

	_, err = repo.SavePayment(ctx, pmt)
	assert.Equal(t, payment.ErrDuplicatePayment, errors.Cause(err))

	// computed against balances that were since reduced
	pmt.Reference = "pi_2"
	_, err = repo.SavePayment(ctx, pmt)
	assert.Equal(t, payment.ErrStaleObligation, errors.Cause(err))
	_, err = repo.GetPayment(ctx, "pi_2")
	assert.Equal(t, payment.ErrPaymentNotFound, err)

	summary, err := repo.CollectionSummary(ctx, "ST-1", "ST-9")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.True(t, decimal.NewFromInt(300).Equal(summary[0].GrandTotal))
	assert.True(t, decimal.NewFromInt(150).Equal(summary[0].Paid))
	assert.True(t, decimal.NewFromInt(150).Equal(summary[0].Outstanding))
	assert.Equal(t, "ST-9", summary[1].Student)
	assert.True(t, summary[1].GrandTotal.IsZero())
}

func TestOperatorRepository(t *testing.T) {
	db := prepareDB(t)
	validate, translator := core.NewValidator()
	operator.InitValidators(validate, translator)
	svc := operator.NewService(sqlxrepos.NewOperatorRepository(db), validate)

	pwd := "Kx9!vTq#2m"
	op, err := svc.Create(ctx, operator.NewOperator{
		Name:            "Ana Pérez",
		Email:           "ana@example.org",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{operator.RoleBursar},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, operator.NewOperator{
		Name:            "Ana Bis",
		Email:           "ana@example.org",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{operator.RoleBursar},
	})
	assert.IsType(t, &core.ValidationError{}, err)

	got, err := svc.Authenticate(ctx, operator.Credentials{Email: "ana@example.org", Password: pwd})
	require.NoError(t, err)
	assert.Equal(t, []string{operator.RoleBursar}, got.Roles)

	stored, err := svc.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, stored.LastLogin.IsZero())

	updated, err := svc.Update(ctx, op.ID, operator.UpdateOperator{Roles: []string{operator.RoleRegistrar}})
	require.NoError(t, err)
	assert.Equal(t, []string{operator.RoleRegistrar}, updated.Roles)

	all, err := svc.QueryAll(ctx, core.DBOrdering{Field: "name", Ascending: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.GetByID(ctx, "missing")
	assert.Equal(t, operator.ErrNotFound, err)
}
