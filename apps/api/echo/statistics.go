package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tuition/core/statistics"
)

func registerStatisticsAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	svc := s.opts.StatisticsSvc

	sg := g.Group("/statistics", jwt, s.adminMiddleware())
	sg.GET("/payments-sum", func(ctx echo.Context) error {
		var q statistics.PaymentsSumQuery
		if err := ctx.Bind(&q); err != nil {
			return errors.Wrap(err, "binding to PaymentsSumQuery")
		}
		res, err := svc.PaymentsSum(ctx.Request().Context(), q)
		if err != nil {
			return errors.Wrap(err, "summing payments")
		}
		return ctx.JSON(http.StatusOK, res)
	})
}
