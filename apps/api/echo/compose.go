package echoapi

import (
	"context"
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/recipient"
)

type composeApi struct {
	mgr        *compose.Manager
	validate   *validator.Validate
	translator ut.Translator
}

func registerComposeAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	mgr *compose.Manager,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := composeApi{
		mgr:        mgr,
		validate:   validate,
		translator: translator,
	}

	g.POST("/courses/:course/compose", api.open, jwt, teacherMiddleware())

	sg := g.Group("/compose/:id", jwt, teacherMiddleware(), sessionMiddleware(mgr))
	sg.GET("", api.retrieve)
	sg.DELETE("", api.close)
	sg.PUT("/draft", api.setDraft)
	sg.PUT("/mode", api.setMode)
	sg.POST("/recipients", api.addRecipient)
	sg.DELETE("/recipients/:student", api.removeRecipient)
	sg.GET("/search", api.search)
	sg.POST("/send", api.send)
}

// Handlers

func (api *composeApi) open(ctx echo.Context) error {
	courseID, err := intParam(ctx, "course")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sess, err := api.mgr.Open(ctx.Request().Context(), courseID, claims.professor())
	if err != nil {
		return errors.Wrap(err, "opening composition session")
	}
	return ctx.JSON(http.StatusCreated, sess.Snapshot())
}

func (api *composeApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *composeApi) close(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	sess.Close()
	return ctx.NoContent(http.StatusNoContent)
}

func (api *composeApi) setDraft(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data DraftRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftRequest")
	}
	if err = sess.SetDraft(data.Subject, data.Message); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *composeApi) setMode(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var mode recipient.Mode
	if err = ctx.Bind(&mode); err != nil {
		return errors.Wrap(err, "binding to recipient.Mode")
	}
	if err = sess.SetMode(mode); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *composeApi) addRecipient(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data RecipientRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecipientRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if _, err = sess.AddIndividual(data.Student()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *composeApi) removeRecipient(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	studentID, err := intParam(ctx, "student")
	if err != nil {
		return err
	}
	if _, err = sess.RemoveByID(studentID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *composeApi) search(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Search(ctx.Request().Context(), ctx.QueryParam("q")))
}

// send validates the draft and starts sending it. With `wait=true`, it responds once the dispatch settled.
func (api *composeApi) send(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}

	vr, err := sess.Submit()
	if err != nil {
		return err
	}
	if err = vr.Err(api.translator); err != nil {
		return err
	}

	if wait, _ := strconv.ParseBool(ctx.QueryParam("wait")); !wait {
		return ctx.JSON(http.StatusAccepted, SendResponse{Session: sess.Snapshot()})
	}

	// the dispatch outlives the request: a cancelled request only stops the waiting
	if err = sess.Wait(ctx.Request().Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			return ctx.NoContent(http.StatusAccepted)
		}
		return errors.Wrap(err, "waiting for dispatch")
	}
	if failure := sess.Controller().Failure(); failure != nil {
		return failure
	}
	resp := SendResponse{Session: sess.Snapshot()}
	if msg, ok := sess.Controller().Sent(); ok {
		resp.Message = &msg
	}
	return ctx.JSON(http.StatusCreated, resp)
}
