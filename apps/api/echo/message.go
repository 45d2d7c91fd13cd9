package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/message"
	"github.com/trezcool/pueriangeli/core/user"
)

type messageApi struct {
	svc      message.Service
	usrSvc   user.Service
	validate *validator.Validate
}

// registerMessageAPI: teachers write to the families of their classes, parents read their inbox.
func registerMessageAPI(g *echo.Group, s *server) {
	api := messageApi{svc: s.opts.MessageSvc, usrSvc: s.opts.UserSvc, validate: s.opts.Validate}
	write := s.apiGuard(guard.Roles(user.RoleTeacher))

	mg := g.Group("/messages")
	mg.POST("", api.create, write)
	mg.GET("/sent", api.querySent, write)
	mg.GET("/recipients", api.queryRecipients, write)
	mg.POST("/:id/send", api.send, write)
	mg.GET("/inbox", api.queryInbox, s.apiGuard(guard.ExactRoles(user.RoleParent)))
	mg.GET("/:id", api.retrieve, s.apiGuard(guard.Auth()))
}

func (api *messageApi) create(ctx echo.Context) error {
	var data message.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sender, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	m, err := api.svc.Create(ctx.Request().Context(), sender, data)
	if err != nil {
		return errors.Wrap(err, "creating message")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *messageApi) send(ctx echo.Context) error {
	sender, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	m, err := api.svc.Send(ctx.Request().Context(), sender, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *messageApi) retrieve(ctx echo.Context) error {
	reader, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	m, err := api.svc.Get(ctx.Request().Context(), reader, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding message")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *messageApi) querySent(ctx echo.Context) error {
	messages, err := api.svc.Sent(ctx.Request().Context(), getContextSession(ctx).UserID())
	if err != nil {
		return errors.Wrap(err, "querying sent messages")
	}
	return ctx.JSON(http.StatusOK, nonNilMessages(messages))
}

func (api *messageApi) queryInbox(ctx echo.Context) error {
	messages, err := api.svc.Inbox(ctx.Request().Context(), getContextSession(ctx).UserID())
	if err != nil {
		return errors.Wrap(err, "querying inbox")
	}
	return ctx.JSON(http.StatusOK, nonNilMessages(messages))
}

func (api *messageApi) queryRecipients(ctx echo.Context) error {
	sender, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	recipients, err := api.svc.Recipients(ctx.Request().Context(), sender)
	if err != nil {
		return errors.Wrap(err, "querying recipients")
	}
	if recipients == nil {
		recipients = []message.Recipient{}
	}
	return ctx.JSON(http.StatusOK, recipients)
}

func nonNilMessages(messages []message.Message) []message.Message {
	if messages == nil {
		return []message.Message{}
	}
	return messages
}
