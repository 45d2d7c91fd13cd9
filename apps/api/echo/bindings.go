package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	orderingParam = "ordering"
	roleParam     = "role"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `ordering=field,-other`; a leading "-" orders descending.
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
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindUserFilter binds the user query filter. It reports false when a role is unknown: nobody can match it.
func bindUserFilter(ctx echo.Context) (*user.QueryFilter, bool, error) {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return nil, false, err
	}
	filter.Clean()

	for _, name := range ctx.QueryParams()[roleParam] {
		role, err := user.ParseRole(name)
		if err != nil {
			return filter, false, nil
		}
		filter.Roles = append(filter.Roles, role)
	}
	return filter, true, nil
}
