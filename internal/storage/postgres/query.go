package postgres

import (
	"fmt"

	"github.com/chenyukaola/feeds-service/internal/model"
)

// orderColumn maps a QueryCriteria.By value to the SQL column that carries
// it, so every listing query builds its ORDER BY/bounds clause the same way.
func orderColumn(by model.OrderKey) string {
	switch by {
	case model.OrderByUpdatedAt:
		return "upd_at"
	case model.OrderByLikes:
		return "likes"
	default:
		return "created_at"
	}
}

// rangeClause builds the tail of a ranged listing query: optional
// "AND idColumn >= ..." / "AND idColumn <= ..." bounds that extend the
// caller's own WHERE, then "ORDER BY ... DESC" and an optional "LIMIT ...".
// Placeholders start at argPos (the next unused placeholder number); the
// returned args go after the caller's own query args.
//
// Bounds apply to idColumn (the entity's own numeric id), not to the sort
// column named by q.By — By only selects how matching rows are ordered.
func rangeClause(idColumn string, q model.QueryCriteria, argPos int) (string, []any) {
	clause := ""
	args := []any{}
	if q.Lower != 0 {
		clause += fmt.Sprintf(" AND %s >= $%d", idColumn, argPos)
		args = append(args, q.Lower)
		argPos++
	}
	if q.Upper != 0 {
		clause += fmt.Sprintf(" AND %s <= $%d", idColumn, argPos)
		args = append(args, q.Upper)
		argPos++
	}
	clause += fmt.Sprintf(" ORDER BY %s DESC", orderColumn(q.By))
	if q.MaxCnt != 0 {
		clause += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, q.MaxCnt)
	}
	return clause, args
}
