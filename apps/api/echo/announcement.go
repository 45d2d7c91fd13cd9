package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/user"
)

type announcementApi struct {
	svc      announcement.Service
	validate *validator.Validate
}

func registerAnnouncementAPI(g *echo.Group, s *server) {
	api := announcementApi{svc: s.opts.AnnouncementSvc, validate: s.opts.Validate}

	ag := g.Group("/announcements", s.apiGuard(guard.Roles(user.RoleAdmin)))
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/send", api.send)
	ag.DELETE("/:id", api.destroy)
}

func (api *announcementApi) query(ctx echo.Context) error {
	var status *announcement.Status
	if s := ctx.QueryParam("status"); s != "" {
		st, ok := announcement.ParseStatus(s)
		if !ok {
			return core.InvalidField("status", "unknown status")
		}
		status = &st
	}

	announcements, err := api.svc.Query(ctx.Request().Context(), status)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if announcements == nil {
		announcements = []announcement.Announcement{}
	}
	return ctx.JSON(http.StatusOK, announcements)
}

func (api *announcementApi) create(ctx echo.Context) error {
	var data announcement.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), getContextSession(ctx).UserID(), data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *announcementApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding announcement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *announcementApi) send(ctx echo.Context) error {
	a, err := api.svc.Send(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending announcement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *announcementApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return ctx.NoContent(http.StatusNoContent)
}
