package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/jamii/core/forum"
	"github.com/trezcool/jamii/core/user"
)

const contextReplyKey = "reply"

type forumApi struct {
	auth     *authenticator
	svc      forum.Service
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

func registerForumAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc forum.Service,
	userSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := forumApi{
		auth:     auth,
		svc:      svc,
		userSvc:  userSvc,
		validate: validate,
	}

	pg := g.Group("/posts", jwt)
	pg.GET("", api.queryPosts)
	pg.POST("", api.createPost, memberMiddleware())

	dg := pg.Group("/:id", postObjectMiddleware(api.svc))
	dg.GET("", api.retrievePost)
	dg.DELETE("", api.destroyPost, authorOrAdminMiddleware(api.userSvc, postAuthor))
	dg.GET("/replies", api.thread)
	dg.POST("/replies", api.createReply, memberMiddleware())
	dg.DELETE(
		"/replies/:replyID",
		api.destroyReply,
		replyObjectMiddleware(api.svc),
		authorOrAdminMiddleware(api.userSvc, replyAuthor),
	)
}

// Handlers

func (api *forumApi) queryPosts(ctx echo.Context) error {
	filter := new(forum.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []forum.Post{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	posts, err := api.svc.QueryPosts(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	if posts == nil {
		posts = []forum.Post{}
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *forumApi) createPost(ctx echo.Context) error {
	var data forum.NewPost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	author, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	post, err := api.svc.CreatePost(ctx.Request().Context(), author, data)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, post)
}

func (api *forumApi) retrievePost(ctx echo.Context) error {
	post, ok := ctx.Get(contextObjectKey).(forum.Post)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving post from context")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *forumApi) destroyPost(ctx echo.Context) error {
	post, ok := ctx.Get(contextObjectKey).(forum.Post)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving post from context")
	}
	if err := api.svc.DeletePost(ctx.Request().Context(), post.ID); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *forumApi) thread(ctx echo.Context) error {
	post, ok := ctx.Get(contextObjectKey).(forum.Post)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving post from context")
	}

	forest, err := api.svc.Thread(ctx.Request().Context(), post.ID)
	if err != nil {
		return errors.Wrap(err, "building thread")
	}
	if forest.Roots == nil {
		forest.Roots = []*forum.Node{}
	}
	if forest.Orphans == nil {
		forest.Orphans = []*forum.Node{}
	}
	if forest.Skipped == nil {
		forest.Skipped = []forum.SkippedReply{}
	}
	return ctx.JSON(http.StatusOK, forest)
}

func (api *forumApi) createReply(ctx echo.Context) error {
	post, ok := ctx.Get(contextObjectKey).(forum.Post)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving post from context")
	}

	var data forum.NewReply
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReply")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	author, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	reply, err := api.svc.CreateReply(ctx.Request().Context(), post, author, data)
	if err != nil {
		return errors.Wrap(err, "creating reply")
	}
	return ctx.JSON(http.StatusCreated, reply)
}

func (api *forumApi) destroyReply(ctx echo.Context) error {
	reply, ok := ctx.Get(contextReplyKey).(forum.Reply)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving reply from context")
	}
	if err := api.svc.DeleteReply(ctx.Request().Context(), reply.ID); err != nil {
		return errors.Wrap(err, "deleting reply")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Middlewares

func postObjectMiddleware(svc forum.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			post, err := svc.GetPost(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == forum.ErrPostNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding post by ID")
			}
			ctx.Set(contextObjectKey, post)
			return next(ctx)
		}
	}
}

// replyObjectMiddleware loads the reply named by `:replyID`; it must belong to the post in context.
func replyObjectMiddleware(svc forum.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			post, ok := ctx.Get(contextObjectKey).(forum.Post)
			if !ok {
				return errors.Wrap(errObjectNotFoundInCtx, "retrieving post from context")
			}

			reply, err := svc.GetReply(ctx.Request().Context(), ctx.Param("replyID"))
			if err != nil {
				if errors.Cause(err) == forum.ErrReplyNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding reply by ID")
			}
			if reply.PostID != post.ID {
				return errHttpNotFound
			}
			ctx.Set(contextReplyKey, reply)
			return next(ctx)
		}
	}
}

func postAuthor(ctx echo.Context) (string, bool) {
	post, ok := ctx.Get(contextObjectKey).(forum.Post)
	return post.AuthorID, ok
}

func replyAuthor(ctx echo.Context) (string, bool) {
	reply, ok := ctx.Get(contextReplyKey).(forum.Reply)
	return reply.AuthorID, ok
}

// authorOrAdminMiddleware lets through the author of the object in context, and admins.
func authorOrAdminMiddleware(svc user.ServiceInterface, author func(echo.Context) (string, bool)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			authorID, ok := author(ctx)
			if !ok {
				return errors.Wrap(errObjectNotFoundInCtx, "retrieving author from context")
			}
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if ctxUsr.ID == authorID || ctxUsr.IsAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
