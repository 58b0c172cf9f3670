package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/operator"
)

const operatorColumns = `id, name, email, password_hash, roles, is_active, created_at, updated_at, last_login`

type operatorRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	PasswordHash []byte         `db:"password_hash"`
	Roles        pq.StringArray `db:"roles"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func newOperatorRow(op operator.Operator) operatorRow {
	roles := op.Roles
	if roles == nil {
		roles = []string{}
	}
	return operatorRow{
		ID:           op.ID,
		Name:         op.Name,
		Email:        op.Email,
		PasswordHash: op.PasswordHash,
		Roles:        roles,
		IsActive:     op.IsActive,
		CreatedAt:    op.CreatedAt.UTC(),
		UpdatedAt:    op.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(op.LastLogin.UTC(), !op.LastLogin.IsZero()),
	}
}

func (row operatorRow) operator() operator.Operator {
	op := operator.Operator{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Roles:        []string(row.Roles),
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		op.LastLogin = row.LastLogin.Time.UTC()
	}
	return op
}

type operatorRepository struct {
	db *sqlx.DB
}

var _ operator.Repository = (*operatorRepository)(nil) // interface compliance check

func NewOperatorRepository(db *sqlx.DB) operator.Repository {
	return &operatorRepository{db: db}
}

func (repo *operatorRepository) CheckEmailUniqueness(ctx context.Context, email string, excluded ...string) error {
	q := `SELECT COUNT(*) FROM operators WHERE email = $1`
	args := []interface{}{email}
	if len(excluded) > 0 {
		q += ` AND NOT (id::text = ANY($2))`
		args = append(args, pq.Array(excluded))
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, q, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return operator.ErrEmailExists
	}
	return nil
}

func (repo *operatorRepository) CreateOperator(ctx context.Context, op operator.Operator) (operator.Operator, error) {
	q := `INSERT INTO operators (` + operatorColumns + `)
		VALUES (:id, :name, :email, :password_hash, :roles, :is_active, :created_at, :updated_at, :last_login)`
	_, err := repo.db.NamedExecContext(ctx, q, newOperatorRow(op))
	if isUniqueViolation(err) {
		return operator.Operator{}, operator.ErrEmailExists
	} else if err != nil {
		return operator.Operator{}, errors.Wrap(err, "inserting operator")
	}
	return op, nil
}

func (repo *operatorRepository) selectOperators(ctx context.Context, q string, args ...interface{}) ([]operator.Operator, error) {
	var rows []operatorRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting operators")
	}
	ops := make([]operator.Operator, 0, len(rows))
	for _, row := range rows {
		ops = append(ops, row.operator())
	}
	return ops, nil
}

func (repo *operatorRepository) QueryAllOperators(ctx context.Context, ordering ...core.DBOrdering) ([]operator.Operator, error) {
	orderBy := core.OrderByClause(ordering, "name", "email", "created_at")
	if orderBy == "" {
		orderBy = "email ASC"
	}
	return repo.selectOperators(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY `+orderBy)
}

func (repo *operatorRepository) getOperator(ctx context.Context, where string, arg interface{}) (operator.Operator, error) {
	var row operatorRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+operatorColumns+` FROM operators WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return operator.Operator{}, operator.ErrNotFound
	} else if err != nil {
		return operator.Operator{}, errors.Wrap(err, "selecting operator")
	}
	return row.operator(), nil
}

func (repo *operatorRepository) GetOperatorByID(ctx context.Context, id string) (operator.Operator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return operator.Operator{}, operator.ErrNotFound
	}
	return repo.getOperator(ctx, "id = $1", id)
}

func (repo *operatorRepository) GetOperatorByEmail(ctx context.Context, email string) (operator.Operator, error) {
	return repo.getOperator(ctx, "email = $1", email)
}

func (repo *operatorRepository) UpdateOperator(ctx context.Context, op operator.Operator) (operator.Operator, error) {
	q := `UPDATE operators
		SET name = :name, email = :email, password_hash = :password_hash, roles = :roles,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newOperatorRow(op))
	if isUniqueViolation(err) {
		return operator.Operator{}, operator.ErrEmailExists
	} else if err != nil {
		return operator.Operator{}, errors.Wrap(err, "updating operator")
	}
	if n, err := res.RowsAffected(); err != nil {
		return operator.Operator{}, errors.Wrap(err, "updating operator")
	} else if n == 0 {
		return operator.Operator{}, operator.ErrNotFound
	}
	return op, nil
}

func (repo *operatorRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE operators SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "setting last login")
	} else if n == 0 {
		return operator.ErrNotFound
	}
	return nil
}
