package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/operator"
)

type operatorRepository struct {
	db *DB
}

var _ operator.Repository = (*operatorRepository)(nil) // interface compliance check

func NewOperatorRepository(db *DB) operator.Repository {
	return &operatorRepository{db: db}
}

func (repo *operatorRepository) query() []operator.Operator {
	ops := make([]operator.Operator, 0, len(repo.db.operators))
	for _, op := range repo.db.operators {
		ops = append(ops, *op)
	}
	return ops
}

func (repo *operatorRepository) CheckEmailUniqueness(_ context.Context, email string, excluded ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, op := range repo.db.operators {
		if op.Email == email && !lo.Contains(excluded, op.ID) {
			return operator.ErrEmailExists
		}
	}
	return nil
}

func (repo *operatorRepository) CreateOperator(_ context.Context, op operator.Operator) (operator.Operator, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, o := range repo.db.operators {
		if o.Email == op.Email {
			return operator.Operator{}, operator.ErrEmailExists
		}
	}
	repo.db.operators[op.ID] = &op
	return op, nil
}

func (repo *operatorRepository) QueryAllOperators(_ context.Context, ordering ...core.DBOrdering) ([]operator.Operator, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ops := repo.query()
	sort.Slice(ops, func(i, j int) bool {
		for _, ord := range ordering {
			var less, greater bool
			switch ord.Field {
			case "name":
				less, greater = ops[i].Name < ops[j].Name, ops[i].Name > ops[j].Name
			case "email":
				less, greater = ops[i].Email < ops[j].Email, ops[i].Email > ops[j].Email
			case "created_at":
				less, greater = ops[i].CreatedAt.Before(ops[j].CreatedAt), ops[i].CreatedAt.After(ops[j].CreatedAt)
			default:
				continue
			}
			if less || greater {
				return less == ord.Ascending
			}
		}
		return ops[i].Email < ops[j].Email
	})
	return ops, nil
}

func (repo *operatorRepository) GetOperatorByID(_ context.Context, id string) (operator.Operator, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if op, ok := repo.db.operators[id]; ok {
		return *op, nil
	}
	return operator.Operator{}, operator.ErrNotFound
}

func (repo *operatorRepository) GetOperatorByEmail(_ context.Context, email string) (operator.Operator, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, op := range repo.db.operators {
		if op.Email == email {
			return *op, nil
		}
	}
	return operator.Operator{}, operator.ErrNotFound
}

func (repo *operatorRepository) UpdateOperator(_ context.Context, op operator.Operator) (operator.Operator, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.operators[op.ID]; !ok {
		return operator.Operator{}, operator.ErrNotFound
	}
	repo.db.operators[op.ID] = &op
	return op, nil
}

func (repo *operatorRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	op, ok := repo.db.operators[id]
	if !ok {
		return operator.ErrNotFound
	}
	op.LastLogin = at
	return nil
}
