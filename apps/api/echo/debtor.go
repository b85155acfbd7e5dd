package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tuition/core/debtor"
)

type debtorApi struct {
	svc *debtor.Service
}

func registerDebtorAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := debtorApi{svc: s.opts.DebtorSvc}

	dg := g.Group("/debtors", jwt, s.adminMiddleware())
	dg.GET("", api.query)
	dg.GET("/:studentId", api.retrieve)
}

func (api *debtorApi) query(ctx echo.Context) error {
	var filter debtor.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to debtor.Filter")
	}

	res, err := api.svc.FindDebtors(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "finding debtors")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *debtorApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.FindOneDebtorDetails(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "finding debtor details")
	}
	return ctx.JSON(http.StatusOK, d)
}
