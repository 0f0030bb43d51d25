package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sauti/core/feedback"
)

type feedbackApi struct {
	svc *feedback.Service
}

func registerFeedbackAPI(g *echo.Group, authmw echo.MiddlewareFunc, svc *feedback.Service) {
	api := feedbackApi{svc: svc}

	// student endpoints
	fg := g.Group("/feedback", authmw)
	fg.POST("", api.submit)
	fg.GET("/mine", api.listOwn)

	// admin endpoints
	ag := g.Group("/admin", authmw)
	ag.GET("/feedback", api.listAll)
	ag.GET("/feedback/:id", api.retrieve)
	ag.PUT("/feedback/:id/status", api.changeStatus)
	ag.POST("/feedback/:id/reply", api.postReply)
	ag.GET("/analytics", api.aggregate)
}

// Handlers

func (api *feedbackApi) submit(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data feedback.NewFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedback")
	}

	fb, err := api.svc.Submit(p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, fb)
}

func (api *feedbackApi) listOwn(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	fbs, err := api.svc.ListOwn(p)
	if err != nil {
		return err
	}
	if fbs == nil {
		fbs = []feedback.Feedback{}
	}
	return ctx.JSON(http.StatusOK, fbs)
}

func (api *feedbackApi) listAll(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	views, err := api.svc.ListAll(p)
	if err != nil {
		return err
	}
	if views == nil {
		views = []feedback.AdminView{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *feedbackApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.GetByID(p, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *feedbackApi) changeStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data feedback.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}

	fb, err := api.svc.ChangeStatus(p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fb)
}

func (api *feedbackApi) postReply(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data feedback.NewReply
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReply")
	}

	fb, err := api.svc.PostReply(p, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fb)
}

func (api *feedbackApi) aggregate(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	agg, err := api.svc.Aggregate(p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, agg)
}
