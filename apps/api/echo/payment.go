package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core/payment"
)

const (
	paymentsPageSize = 100
	historyPageSize  = 20
)

type paymentApi struct {
	s   *Server
	svc *payment.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := paymentApi{s: s, svc: s.opts.PaymentSvc}

	pg := g.Group("/payments", jwt, s.adminMiddleware())
	pg.POST("", api.create)
	pg.GET("", api.query)
	pg.GET("/history", api.history)
	pg.GET("/:id", api.retrieve)
	pg.PATCH("/:id", api.update)
	pg.DELETE("/:id", api.destroy)

	sg := g.Group("/students", jwt, s.adminMiddleware())
	sg.GET("/:id/balance", api.balance)
}

type BalanceResponse struct {
	StudentID string          `json:"studentId"`
	Balance   decimal.Decimal `json:"balance"`
}

// Handlers

func (api *paymentApi) create(ctx echo.Context) error {
	claims, err := api.s.contextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data payment.NewEntry
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEntry")
	}

	entry, err := api.svc.Record(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	api.s.metrics.ledgerChanged(payment.ActionCreate)
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *paymentApi) query(ctx echo.Context) error {
	var filter payment.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	var pagination Pagination
	if err := ctx.Bind(&pagination); err != nil {
		return errors.Wrap(err, "binding to Pagination")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	res, err := api.svc.Query(ctx.Request().Context(), filter, pagination.Page(paymentsPageSize), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *paymentApi) history(ctx echo.Context) error {
	var filter payment.HistoryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to HistoryFilter")
	}
	var pagination Pagination
	if err := ctx.Bind(&pagination); err != nil {
		return errors.Wrap(err, "binding to Pagination")
	}

	res, err := api.svc.History(ctx.Request().Context(), filter, pagination.Page(historyPageSize))
	if err != nil {
		return errors.Wrap(err, "querying payment history")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	entry, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *paymentApi) update(ctx echo.Context) error {
	claims, err := api.s.contextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data payment.UpdateEntry
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEntry")
	}

	entry, err := api.svc.Amend(ctx.Request().Context(), ctx.Param("id"), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "amending payment")
	}
	api.s.metrics.ledgerChanged(payment.ActionUpdate)
	return ctx.JSON(http.StatusOK, entry)
}

func (api *paymentApi) destroy(ctx echo.Context) error {
	claims, err := api.s.contextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	entry, err := api.svc.Void(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "voiding payment")
	}
	api.s.metrics.ledgerChanged(payment.ActionDelete)
	return ctx.JSON(http.StatusOK, entry)
}

func (api *paymentApi) balance(ctx echo.Context) error {
	id := ctx.Param("id")
	balance, err := api.svc.BalanceOf(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{StudentID: id, Balance: balance})
}
