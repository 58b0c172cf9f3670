package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/edtools/edcore/core/payment"
)

const (
	obligationColumns = `id, student, description, program, due_date, amount, outstanding, currency, created_at`
	paymentColumns    = `id, reference, student, amount, currency, source, created_at`
)

type (
	obligationRow struct {
		ID          string          `db:"id"`
		Student     string          `db:"student"`
		Description string          `db:"description"`
		Program     null.String     `db:"program"`
		DueDate     time.Time       `db:"due_date"`
		Amount      decimal.Decimal `db:"amount"`
		Outstanding decimal.Decimal `db:"outstanding"`
		Currency    string          `db:"currency"`
		CreatedAt   time.Time       `db:"created_at"`
	}

	paymentRow struct {
		ID        string          `db:"id"`
		Reference string          `db:"reference"`
		Student   string          `db:"student"`
		Amount    decimal.Decimal `db:"amount"`
		Currency  string          `db:"currency"`
		Source    string          `db:"source"`
		CreatedAt time.Time       `db:"created_at"`
	}

	allocationRow struct {
		ID           string          `db:"id"`
		ObligationID string          `db:"obligation_id"`
		Description  string          `db:"description"`
		Program      null.String     `db:"program"`
		DueDate      time.Time       `db:"due_date"`
		Outstanding  decimal.Decimal `db:"outstanding"`
		Amount       decimal.Decimal `db:"amount"`
		Currency     string          `db:"currency"`
	}
)

func newObligationRow(ob payment.Obligation) obligationRow {
	return obligationRow{
		ID:          ob.ID,
		Student:     ob.Student,
		Description: ob.Description,
		Program:     null.NewString(ob.Program, ob.Program != ""),
		DueDate:     ob.DueDate.UTC(),
		Amount:      ob.Amount,
		Outstanding: ob.Outstanding,
		Currency:    ob.Currency,
		CreatedAt:   ob.CreatedAt.UTC(),
	}
}

func (row obligationRow) obligation() payment.Obligation {
	return payment.Obligation{
		ID:          row.ID,
		Student:     row.Student,
		Description: row.Description,
		Program:     row.Program.String,
		DueDate:     row.DueDate.UTC(),
		Amount:      row.Amount,
		Outstanding: row.Outstanding,
		Currency:    row.Currency,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func (row allocationRow) allocation() payment.Allocation {
	return payment.Allocation{
		ID:           row.ID,
		ObligationID: row.ObligationID,
		Description:  row.Description,
		Program:      row.Program.String,
		DueDate:      row.DueDate.UTC(),
		Outstanding:  row.Outstanding,
		Amount:       row.Amount,
		Currency:     row.Currency,
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreateObligations(ctx context.Context, obs []payment.Obligation) ([]payment.Obligation, error) {
	if len(obs) == 0 {
		return obs, nil
	}
	rows := make([]obligationRow, 0, len(obs))
	created := make([]payment.Obligation, 0, len(obs))
	for _, ob := range obs {
		if ob.ID == "" {
			ob.ID = uuid.New().String()
		}
		if ob.CreatedAt.IsZero() {
			ob.CreatedAt = time.Now().UTC()
		}
		rows = append(rows, newObligationRow(ob))
		created = append(created, ob)
	}

	q := `INSERT INTO obligations (` + obligationColumns + `)
		VALUES (:id, :student, :description, :program, :due_date, :amount, :outstanding, :currency, :created_at)`
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
				return errors.Wrap(err, "inserting obligation")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo *paymentRepository) GetObligation(ctx context.Context, id string) (payment.Obligation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payment.Obligation{}, payment.ErrObligationNotFound
	}
	var row obligationRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+obligationColumns+` FROM obligations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Obligation{}, payment.ErrObligationNotFound
	} else if err != nil {
		return payment.Obligation{}, errors.Wrap(err, "selecting obligation")
	}
	return row.obligation(), nil
}

func (repo *paymentRepository) QueryOpenObligations(ctx context.Context, student string) ([]payment.Obligation, error) {
	var rows []obligationRow
	q := `SELECT ` + obligationColumns + ` FROM obligations
		WHERE student = $1 AND outstanding > 0
		ORDER BY due_date, created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, q, student); err != nil {
		return nil, errors.Wrap(err, "selecting open obligations")
	}
	obs := make([]payment.Obligation, 0, len(rows))
	for _, row := range rows {
		obs = append(obs, row.obligation())
	}
	return obs, nil
}

func (repo *paymentRepository) GetPayment(ctx context.Context, reference string) (payment.Payment, error) {
	var row paymentRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Payment{}, payment.ErrPaymentNotFound
	} else if err != nil {
		return payment.Payment{}, errors.Wrap(err, "selecting payment")
	}

	var allocRows []allocationRow
	q := `SELECT a.id, a.obligation_id, o.description, o.program, o.due_date, a.outstanding, a.amount, o.currency
		FROM payment_allocations a
		JOIN obligations o ON o.id = a.obligation_id
		WHERE a.payment_id = $1
		ORDER BY a.position`
	if err = repo.db.SelectContext(ctx, &allocRows, q, row.ID); err != nil {
		return payment.Payment{}, errors.Wrap(err, "selecting payment allocations")
	}

	pmt := payment.Payment{
		ID:          row.ID,
		Reference:   row.Reference,
		Student:     row.Student,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Source:      row.Source,
		Allocations: make([]payment.Allocation, 0, len(allocRows)),
		CreatedAt:   row.CreatedAt.UTC(),
	}
	for _, ar := range allocRows {
		pmt.Allocations = append(pmt.Allocations, ar.allocation())
	}
	return pmt, nil
}

func (repo *paymentRepository) SavePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Allocations = append([]payment.Allocation(nil), p.Allocations...)

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.Reference, p.Student, p.Amount, p.Currency, p.Source, p.CreatedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return payment.ErrDuplicatePayment
		} else if err != nil {
			return errors.Wrap(err, "inserting payment")
		}

		for i := range p.Allocations {
			a := &p.Allocations[i]
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			// the guard fails when a concurrent payment reduced the balance
			res, err := tx.ExecContext(ctx,
				`UPDATE obligations SET outstanding = outstanding - $1 WHERE id = $2 AND outstanding >= $1`,
				a.Amount, a.ObligationID,
			)
			if err != nil {
				return errors.Wrap(err, "updating obligation")
			}
			if n, err := res.RowsAffected(); err != nil {
				return errors.Wrap(err, "updating obligation")
			} else if n == 0 {
				return payment.ErrStaleObligation
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO payment_allocations (id, payment_id, obligation_id, position, outstanding, amount)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				a.ID, p.ID, a.ObligationID, i, a.Outstanding, a.Amount,
			)
			if err != nil {
				return errors.Wrap(err, "inserting payment allocation")
			}
		}
		return nil
	})
	if err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (repo *paymentRepository) CollectionSummary(ctx context.Context, students ...string) ([]payment.CollectionRow, error) {
	q := `SELECT student,
			SUM(amount) AS grand_total,
			SUM(amount - outstanding) AS paid_amount,
			SUM(outstanding) AS outstanding_amount
		FROM obligations`
	args := make([]interface{}, 0, 1)
	if len(students) > 0 {
		q += ` WHERE student = ANY($1)`
		args = append(args, pq.Array(students))
	}
	q += ` GROUP BY student ORDER BY student`

	var rows []payment.CollectionRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting collection summary")
	}
	if len(students) == 0 {
		return rows, nil
	}

	// requested students without obligations get a zero row
	byStudent := make(map[string]payment.CollectionRow, len(rows))
	for _, row := range rows {
		byStudent[row.Student] = row
	}
	summary := make([]payment.CollectionRow, 0, len(students))
	for _, s := range students {
		row, ok := byStudent[s]
		if !ok {
			row = payment.CollectionRow{Student: s, GrandTotal: decimal.Zero, Paid: decimal.Zero, Outstanding: decimal.Zero}
		}
		summary = append(summary, row)
	}
	return summary, nil
}
