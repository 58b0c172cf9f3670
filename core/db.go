package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderByClause joins orderings whose field is in allowed; the others are dropped.
func OrderByClause(ordering []DBOrdering, allowed ...string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		for _, fld := range allowed {
			if strings.EqualFold(ord.Field, fld) {
				ord.Field = fld
				parts = append(parts, ord.String())
				break
			}
		}
	}
	return strings.Join(parts, ", ")
}
