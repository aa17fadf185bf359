package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/message"
)

const (
	eventMessageCreated = "messageCreated"
	keepAliveInterval   = 30 * time.Second
)

type messageApi struct {
	svc    *message.Service
	caches *message.Caches
	logger core.Logger
}

func registerMessageAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *message.Service, caches *message.Caches, logger core.Logger) {
	api := messageApi{
		svc:    svc,
		caches: caches,
		logger: logger,
	}

	cg := g.Group("/courses/:course/messages", jwt, teacherMiddleware())
	cg.GET("", api.query)
	cg.GET("/events", api.events)

	g.GET("/messages/:id", api.retrieve, jwt, teacherMiddleware())
	g.POST("/messages/:id/read", api.markRead, jwt, studentMiddleware())
	g.GET("/inbox", api.inbox, jwt, studentMiddleware())
}

// loadedCache returns the message list of the course. Every list request and event stream starts
// a new list session, so the list is reloaded from storage.
func (api *messageApi) loadedCache(ctx echo.Context) (*message.ListCache, error) {
	courseID, err := intParam(ctx, "course")
	if err != nil {
		return nil, err
	}
	cache := api.caches.Get(courseID)
	if err = cache.Reload(ctx.Request().Context(), api.svc); err != nil {
		return nil, errors.Wrap(err, "loading message list")
	}
	return cache, nil
}

// Handlers

func (api *messageApi) query(ctx echo.Context) error {
	cache, err := api.loadedCache(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cache.Messages())
}

// events streams a `messageCreated` server-sent event whenever a message is added to the course list.
// Events carry the new list length only: clients re-read the list.
func (api *messageApi) events(ctx echo.Context) error {
	cache, err := api.loadedCache(ctx)
	if err != nil {
		return err
	}

	wake := make(chan struct{}, 1)
	unsubscribe := cache.Subscribe(func() {
		select {
		case wake <- struct{}{}:
		default: // a wake-up is already pending
		}
	})
	defer unsubscribe()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	if _, err = fmt.Fprint(res, ": subscribed\n\n"); err != nil {
		return nil
	}
	res.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Request().Context().Done():
			return nil
		case <-keepAlive.C:
			_, err = fmt.Fprint(res, ": keep-alive\n\n")
		case <-wake:
			_, err = fmt.Fprintf(res, "event: %s\ndata: {\"course\":%d,\"count\":%d}\n\n",
				eventMessageCreated, cache.CourseID(), cache.Len())
		}
		if err != nil {
			api.logger.Debug(fmt.Sprintf("closing event stream: %v", err))
			return nil
		}
		res.Flush()
	}
}

func (api *messageApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	msg, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting message")
	}
	return ctx.JSON(http.StatusOK, msg.Detail())
}

func (api *messageApi) markRead(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.MarkRead(ctx.Request().Context(), id, studentID); err != nil {
		return errors.Wrap(err, "marking message read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *messageApi) inbox(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}
	items, err := api.svc.Inbox(ctx.Request().Context(), studentID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, items)
}
