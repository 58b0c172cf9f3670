package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreateObligations(_ context.Context, obs []payment.Obligation) ([]payment.Obligation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	created := make([]payment.Obligation, 0, len(obs))
	for _, ob := range obs {
		if ob.ID == "" {
			ob.ID = uuid.New().String()
		}
		ob := ob
		repo.db.obligations[ob.ID] = &ob
		created = append(created, ob)
	}
	return created, nil
}

func (repo *paymentRepository) GetObligation(_ context.Context, id string) (payment.Obligation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ob, ok := repo.db.obligations[id]; ok {
		return *ob, nil
	}
	return payment.Obligation{}, payment.ErrObligationNotFound
}

func (repo *paymentRepository) QueryOpenObligations(_ context.Context, student string) ([]payment.Obligation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	obs := make([]payment.Obligation, 0)
	for _, ob := range repo.db.obligations {
		if ob.Student == student && ob.Outstanding.IsPositive() {
			obs = append(obs, *ob)
		}
	}
	sort.Slice(obs, func(i, j int) bool {
		if !obs[i].DueDate.Equal(obs[j].DueDate) {
			return obs[i].DueDate.Before(obs[j].DueDate)
		}
		if !obs[i].CreatedAt.Equal(obs[j].CreatedAt) {
			return obs[i].CreatedAt.Before(obs[j].CreatedAt)
		}
		return obs[i].ID < obs[j].ID
	})
	return obs, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, reference string) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.payments[reference]; ok {
		return *p, nil
	}
	return payment.Payment{}, payment.ErrPaymentNotFound
}

func (repo *paymentRepository) SavePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.payments[p.Reference]; ok {
		return payment.Payment{}, payment.ErrDuplicatePayment
	}
	// check every allocation before touching anything
	for _, a := range p.Allocations {
		ob, ok := repo.db.obligations[a.ObligationID]
		if !ok || ob.Outstanding.LessThan(a.Amount) {
			return payment.Payment{}, payment.ErrStaleObligation
		}
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	allocs := make([]payment.Allocation, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		ob := repo.db.obligations[a.ObligationID]
		ob.Outstanding = ob.Outstanding.Sub(a.Amount)
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		allocs = append(allocs, a)
	}
	p.Allocations = allocs
	repo.db.payments[p.Reference] = &p
	return p, nil
}

func (repo *paymentRepository) CollectionSummary(_ context.Context, students ...string) ([]payment.CollectionRow, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make(map[string]*payment.CollectionRow)
	for _, ob := range repo.db.obligations {
		row, ok := rows[ob.Student]
		if !ok {
			row = &payment.CollectionRow{Student: ob.Student}
			rows[ob.Student] = row
		}
		row.GrandTotal = row.GrandTotal.Add(ob.Amount)
		row.Outstanding = row.Outstanding.Add(ob.Outstanding)
		row.Paid = row.GrandTotal.Sub(row.Outstanding)
	}

	var summary []payment.CollectionRow
	if len(students) == 0 {
		summary = make([]payment.CollectionRow, 0, len(rows))
		for _, row := range rows {
			summary = append(summary, *row)
		}
		sort.Slice(summary, func(i, j int) bool { return summary[i].Student < summary[j].Student })
		return summary, nil
	}

	// requested students without obligations get a zero row
	summary = make([]payment.CollectionRow, 0, len(students))
	for _, s := range students {
		if row, ok := rows[s]; ok {
			summary = append(summary, *row)
		} else {
			summary = append(summary, payment.CollectionRow{Student: s, GrandTotal: decimal.Zero, Paid: decimal.Zero, Outstanding: decimal.Zero})
		}
	}
	return summary, nil
}
