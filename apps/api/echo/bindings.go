package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
)

const orderingParam = "ordering"

// Ordering binds `?ordering=name,-created_at`: fields prefixed with "-" sort descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// bindDecimal parses the query parameter name as a decimal.
func bindDecimal(ctx echo.Context, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(ctx.QueryParam(name)))
	if err != nil {
		return decimal.Zero, core.NewValidationError(err, core.FieldError{Field: name, Error: name + " must be a number"})
	}
	return d, nil
}
