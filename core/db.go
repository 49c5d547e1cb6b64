package core

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBExecutor interface {
	sqlx.ExtContext
}

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

// OrderByClause renders orderings as an ORDER BY list.
// Fields are mapped through `columns` (API field -> column); unknown fields are dropped.
func OrderByClause(ordering []DBOrdering, columns map[string]string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		orderList = append(orderList, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return strings.Join(orderList, ", ")
}
