package inmemdb

import (
	"sync"

	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
)

type (
	// DB holds every table behind a single lock so that multi-table writes are atomic.
	DB struct {
		sync.RWMutex
		obligations map[string]*payment.Obligation
		payments    map[string]*payment.Payment // by reference
		operators   map[string]*operator.Operator
	}
)

func Open() *DB {
	return &DB{
		obligations: make(map[string]*payment.Obligation),
		payments:    make(map[string]*payment.Payment),
		operators:   make(map[string]*operator.Operator),
	}
}
