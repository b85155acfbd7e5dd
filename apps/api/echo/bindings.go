package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tuition/core"
)

const (
	orderingParam  = "ordering"
	sortByParam    = "sortBy"
	sortOrderParam = "sortOrder"

	maxPageSize = 100
)

// Ordering binds `?ordering=-date,amount`: a leading "-" sorts descending.
// `?sortBy=amount&sortOrder=asc` is understood too; sortOrder defaults to desc.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		if sortBy := strings.TrimSpace(ctx.QueryParam(sortByParam)); sortBy != "" {
			asc := strings.EqualFold(ctx.QueryParam(sortOrderParam), "asc")
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: sortBy, Ascending: asc})
		}
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

// Pagination binds `?page=&limit=`.
type Pagination struct {
	Number int `query:"page"`
	Size   int `query:"limit"`
}

func (p Pagination) Page(defaultSize int) core.Page {
	return core.NewPage(p.Number, p.Size, defaultSize, maxPageSize)
}
