package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/user"
)

type classroomApi struct {
	svc      classroom.Service
	validate *validator.Validate
}

// registerClassroomAPI: teachers read, admins write.
func registerClassroomAPI(g *echo.Group, s *server) {
	api := classroomApi{svc: s.opts.ClassroomSvc, validate: s.opts.Validate}
	read := s.apiGuard(guard.Roles(user.RoleTeacher))
	write := s.apiGuard(guard.Roles(user.RoleAdmin))

	cg := g.Group("/classes")
	cg.GET("", api.queryClasses, read)
	cg.POST("", api.createClass, write)
	cg.GET("/:id", api.retrieveClass, read)
	cg.PUT("/:id", api.updateClass, write)
	cg.DELETE("/:id", api.destroyClass, write)
	cg.POST("/:id/students", api.assignStudent, write)
	cg.DELETE("/:id/students/:studentID", api.removeStudent, write)

	sg := g.Group("/students")
	sg.GET("", api.queryStudents, read)
	sg.POST("", api.createStudent, write)
	sg.GET("/:id", api.retrieveStudent, read)
	sg.DELETE("/:id", api.destroyStudent, write)

	crg := g.Group("/courses")
	crg.GET("", api.queryCourses, read)
	crg.POST("", api.createCourse, write)
	crg.DELETE("/:id", api.destroyCourse, write)

	// staff have no children of their own
	g.GET("/children", api.queryChildren, s.apiGuard(guard.ExactRoles(user.RoleParent)))
}

// queryChildren lists the students of the signed-in parent.
func (api *classroomApi) queryChildren(ctx echo.Context) error {
	students, err := api.svc.StudentsOfParent(ctx.Request().Context(), getContextSession(ctx).UserID())
	if err != nil {
		return errors.Wrap(err, "querying children")
	}
	if students == nil {
		students = []classroom.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

// Classes

func (api *classroomApi) queryClasses(ctx echo.Context) error {
	classes, err := api.svc.QueryClasses(ctx.Request().Context(), ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []classroom.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classroomApi) createClass(ctx echo.Context) error {
	var data classroom.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classroomApi) retrieveClass(ctx echo.Context) error {
	cls, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classroomApi) updateClass(ctx echo.Context) error {
	var data classroom.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.UpdateClass(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classroomApi) destroyClass(ctx echo.Context) error {
	if err := api.svc.DeleteClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classroomApi) assignStudent(ctx echo.Context) error {
	var data AssignStudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignStudentRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	s, err := api.svc.AssignStudent(ctx.Request().Context(), data.StudentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "assigning student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *classroomApi) removeStudent(ctx echo.Context) error {
	s, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if s.ClassID != ctx.Param("id") {
		return errHttpNotFound
	}

	s, err = api.svc.RemoveStudent(ctx.Request().Context(), s.ID)
	if err != nil {
		return errors.Wrap(err, "removing student")
	}
	return ctx.JSON(http.StatusOK, s)
}

// Students

func (api *classroomApi) queryStudents(ctx echo.Context) error {
	var filter classroom.StudentFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []classroom.Student{})
	}

	students, err := api.svc.QueryStudents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []classroom.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *classroomApi) createStudent(ctx echo.Context) error {
	var data classroom.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *classroomApi) retrieveStudent(ctx echo.Context) error {
	s, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *classroomApi) destroyStudent(ctx echo.Context) error {
	if err := api.svc.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Courses

func (api *classroomApi) queryCourses(ctx echo.Context) error {
	var filter classroom.CourseFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []classroom.Course{})
	}

	courses, err := api.svc.QueryCourses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []classroom.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *classroomApi) createCourse(ctx echo.Context) error {
	var data classroom.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *classroomApi) destroyCourse(ctx echo.Context) error {
	if err := api.svc.DeleteCourse(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AssignStudentRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}
