package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/jamii/core/subscription"
)

type (
	subscriptionApi struct {
		auth     *authenticator
		svc      subscription.Service
		validate *validator.Validate
	}

	DueResponse struct {
		ToWarn      []subscription.Subscription `json:"to_warn"`
		ToDowngrade []subscription.Subscription `json:"to_downgrade"`
		Skipped     []subscription.SweepItem    `json:"skipped"`
	}
)

func registerSubscriptionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc subscription.Service,
	validate *validator.Validate,
) {
	api := subscriptionApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/subscriptions", jwt, adminMiddleware())
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/due", api.due)
	sg.POST("/sweep", api.sweep)

	dg := sg.Group("/:id", subscriptionObjectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *subscriptionApi) query(ctx echo.Context) error {
	filter := new(subscription.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []subscription.Evaluation{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	evals, err := api.svc.Evaluate(ctx.Request().Context(), filter, ordering.Orderings, subscription.NowFunc())
	if err != nil {
		return errors.Wrap(err, "evaluating subscriptions")
	}
	return ctx.JSON(http.StatusOK, evals)
}

func (api *subscriptionApi) create(ctx echo.Context) error {
	var data subscription.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subscription")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *subscriptionApi) due(ctx echo.Context) error {
	due, err := api.svc.DueActions(ctx.Request().Context(), subscription.NowFunc())
	if err != nil {
		return errors.Wrap(err, "computing due actions")
	}

	resp := DueResponse{
		ToWarn:      due.ToWarn,
		ToDowngrade: due.ToDowngrade,
		Skipped:     make([]subscription.SweepItem, 0, len(due.Skipped)),
	}
	if resp.ToWarn == nil {
		resp.ToWarn = []subscription.Subscription{}
	}
	if resp.ToDowngrade == nil {
		resp.ToDowngrade = []subscription.Subscription{}
	}
	for _, skipped := range due.Skipped {
		resp.Skipped = append(resp.Skipped, subscription.SweepItem{
			SubscriptionID: skipped.Subscription.ID,
			Action:         subscription.ActionSkip,
			Error:          skipped.Err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *subscriptionApi) sweep(ctx echo.Context) error {
	report, err := api.svc.Sweep(ctx.Request().Context(), subscription.NowFunc())
	if err != nil {
		return errors.Wrap(err, "sweeping subscriptions")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *subscriptionApi) retrieve(ctx echo.Context) error {
	sub, ok := ctx.Get(contextObjectKey).(subscription.Subscription)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving subscription from context")
	}

	eval := subscription.Evaluation{Subscription: sub}
	state, err := subscription.Classify(sub, subscription.NowFunc())
	eval.State = state
	if err != nil {
		eval.Error = err.Error()
	}
	return ctx.JSON(http.StatusOK, eval)
}

func (api *subscriptionApi) update(ctx echo.Context) error {
	sub, ok := ctx.Get(contextObjectKey).(subscription.Subscription)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving subscription from context")
	}

	var data subscription.UpdateSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubscription")
	}
	if err := data.Validate(sub, api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Update(ctx.Request().Context(), sub, data)
	if err != nil {
		return errors.Wrap(err, "updating subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) destroy(ctx echo.Context) error {
	sub, ok := ctx.Get(contextObjectKey).(subscription.Subscription)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving subscription from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), sub.ID); err != nil {
		return errors.Wrap(err, "deleting subscription")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func subscriptionObjectMiddleware(svc subscription.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sub, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == subscription.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding subscription by ID")
			}
			ctx.Set(contextObjectKey, sub)
			return next(ctx)
		}
	}
}
