package echoapi

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/coursework"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	documentField   = "document"
	maxDocumentBody = "20M"
)

type courseworkApi struct {
	svc      coursework.Service
	validate *validator.Validate
}

// registerCourseworkAPI: teachers manage their assignments and grades; parents read those of their children.
func registerCourseworkAPI(g *echo.Group, s *server) {
	api := courseworkApi{svc: s.opts.CourseworkSvc, validate: s.opts.Validate}
	anyone := s.apiGuard(guard.Auth())
	teacher := s.apiGuard(guard.Roles(user.RoleTeacher))

	ag := g.Group("/assignments")
	ag.GET("", api.queryAssignments, anyone)
	ag.POST("", api.createAssignment, teacher, middleware.BodyLimit(maxDocumentBody))
	ag.GET("/:id", api.retrieveAssignment, anyone)
	ag.GET("/:id/document", api.downloadDocument, anyone)
	ag.POST("/:id/publish", api.publishAssignment, teacher)
	ag.DELETE("/:id", api.destroyAssignment, teacher)

	gg := g.Group("/grades")
	gg.GET("", api.queryGrades, anyone)
	gg.POST("", api.recordGrade, teacher)
}

// isParentOnly tells parents apart from staff, who see every assignment.
func isParentOnly(sess *session.Session) bool {
	return !sess.Role().Satisfies(user.RoleTeacher)
}

func (api *courseworkApi) queryAssignments(ctx echo.Context) error {
	sess := getContextSession(ctx)

	var assignments []coursework.Assignment
	var err error
	if isParentOnly(sess) {
		assignments, err = api.svc.ForParent(ctx.Request().Context(), sess.UserID())
	} else {
		var filter coursework.AssignmentFilter
		filter, err = bindAssignmentFilter(ctx)
		if err != nil {
			return err
		}
		assignments, err = api.svc.QueryAssignments(ctx.Request().Context(), filter)
	}
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []coursework.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func bindAssignmentFilter(ctx echo.Context) (coursework.AssignmentFilter, error) {
	var filter coursework.AssignmentFilter
	if ids := ctx.QueryParams()["class_id"]; len(ids) > 0 {
		filter.ClassIDs = ids
	}
	filter.TeacherID = ctx.QueryParam("teacher_id")
	if s := ctx.QueryParam("status"); s != "" {
		status, ok := coursework.ParseStatus(s)
		if !ok {
			return filter, core.InvalidField("status", "unknown status")
		}
		filter.Status = &status
	}
	return filter, nil
}

// createAssignment accepts a multipart form with an optional `document` file, or plain JSON.
func (api *courseworkApi) createAssignment(ctx echo.Context) error {
	var data coursework.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var upload *coursework.Upload
	if fh, err := ctx.FormFile(documentField); err == nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded document")
		}
		defer f.Close()
		upload = &coursework.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Content:     f,
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return errors.Wrap(err, "reading uploaded document")
	}

	a, err := api.svc.CreateAssignment(ctx.Request().Context(), getContextSession(ctx).UserID(), data, upload)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

// visibleAssignment finds an assignment the session may read: parents only reach those of their children.
func (api *courseworkApi) visibleAssignment(ctx echo.Context) (coursework.Assignment, error) {
	sess := getContextSession(ctx)
	id := ctx.Param("id")

	if !isParentOnly(sess) {
		a, err := api.svc.GetAssignment(ctx.Request().Context(), id)
		return a, errors.Wrap(err, "finding assignment")
	}

	assignments, err := api.svc.ForParent(ctx.Request().Context(), sess.UserID())
	if err != nil {
		return coursework.Assignment{}, errors.Wrap(err, "querying assignments")
	}
	for _, a := range assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return coursework.Assignment{}, errHttpNotFound
}

// managedAssignment finds an assignment the session may change.
func (api *courseworkApi) managedAssignment(ctx echo.Context, id string) (coursework.Assignment, error) {
	a, err := api.svc.GetAssignment(ctx.Request().Context(), id)
	if err != nil {
		return coursework.Assignment{}, errors.Wrap(err, "finding assignment")
	}
	sess := getContextSession(ctx)
	if !coursework.CanManage(a, sess.UserID(), sess.Role()) {
		return coursework.Assignment{}, errHttpForbidden
	}
	return a, nil
}

func (api *courseworkApi) retrieveAssignment(ctx echo.Context) error {
	a, err := api.visibleAssignment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseworkApi) downloadDocument(ctx echo.Context) error {
	a, err := api.visibleAssignment(ctx)
	if err != nil {
		return err
	}

	doc, rc, err := api.svc.OpenDocument(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "opening document")
	}
	defer rc.Close()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	if doc.Size > 0 {
		resp.Header().Set(echo.HeaderContentLength, strconv.FormatInt(doc.Size, 10))
	}
	return ctx.Stream(http.StatusOK, doc.ContentType, rc)
}

func (api *courseworkApi) publishAssignment(ctx echo.Context) error {
	a, err := api.managedAssignment(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if a, err = api.svc.Publish(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "publishing assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseworkApi) destroyAssignment(ctx echo.Context) error {
	a, err := api.managedAssignment(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := api.svc.DeleteAssignment(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Grades

func (api *courseworkApi) queryGrades(ctx echo.Context) error {
	sess := getContextSession(ctx)

	var grades []coursework.Grade
	var err error
	if isParentOnly(sess) {
		grades, err = api.svc.GradesForParent(ctx.Request().Context(), sess.UserID())
	} else {
		filter := coursework.GradeFilter{AssignmentID: ctx.QueryParam("assignment_id")}
		if ids := ctx.QueryParams()["student_id"]; len(ids) > 0 {
			filter.StudentIDs = ids
		}
		grades, err = api.svc.QueryGrades(ctx.Request().Context(), filter)
	}
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []coursework.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *courseworkApi) recordGrade(ctx echo.Context) error {
	var data coursework.NewGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// an unknown assignment is reported by RecordGrade as a field error
	if _, err := api.managedAssignment(ctx, data.AssignmentID); err != nil && errors.Cause(err) != coursework.ErrAssignmentNotFound {
		return err
	}

	g, err := api.svc.RecordGrade(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording grade")
	}
	return ctx.JSON(http.StatusCreated, g)
}
