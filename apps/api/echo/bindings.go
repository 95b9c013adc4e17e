package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/admitdesk/admitdesk/core"
)

const orderingParam = "ordering"

// bindOrdering reads `?ordering=deadline,-created_at` (or repeated ordering params) into
// core.DBOrdering values; a leading "-" sorts descending. Empty and repeated fields are dropped.
// Services keep only the fields they allow.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	var orderings []core.DBOrdering
	seen := make(map[string]bool)
	for _, param := range ctx.QueryParams()[orderingParam] {
		for _, field := range strings.Split(param, ",") {
			field = strings.ToLower(strings.TrimSpace(field))
			descending := strings.HasPrefix(field, "-")
			field = strings.TrimPrefix(field, "-")
			if field == "" || seen[field] {
				continue
			}
			seen[field] = true
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}
