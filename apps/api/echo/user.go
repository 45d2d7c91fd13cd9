package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	errNoPermsToSetRole = "not enough rights to set this role"
	contextObjectKey    = "object"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type userApi struct {
	s        *server
	svc      user.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, s *server) {
	api := userApi{s: s, svc: s.opts.UserSvc, validate: s.opts.Validate}

	ag := g.Group("/auth")

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	authed := ag.Group("", s.apiGuard(guard.Auth()))
	authed.POST("/logout", api.logout)
	authed.POST("/token-refresh", api.refreshToken)
	authed.GET("/profile", api.profile)
	authed.PUT("/profile", api.updateProfile)
	authed.POST("/change-password", api.changePassword)

	parents := ag.Group("/parent-profile", s.apiGuard(guard.ExactRoles(user.RoleParent)))
	parents.GET("", api.parentProfile)
	parents.PUT("", api.updateParentProfile)
}

func registerUserAPI(g *echo.Group, s *server) {
	api := userApi{s: s, svc: s.opts.UserSvc, validate: s.opts.Validate}

	ug := g.Group("/users", s.apiGuard(guard.Roles(user.RoleAdmin)))
	ug.POST("", api.create)
	ug.GET("", api.query)
	ug.DELETE("", api.destroyMultiple)
	ug.GET("/roles", api.queryRoles)

	// detail endpoints
	dg := ug.Group("/:id", objectUserMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// Auth handlers

// login opens a session and answers with its token and where the dashboards should land.
func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := authenticate(ctx, data.Email, data.Password, api.svc)
	if err != nil {
		return err
	}
	sess, err := api.s.opts.Sessions.Login(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	token, err := api.s.issueToken(ctx, sess)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		User:     sess.User,
		Redirect: guard.PostLoginRedirect(data.Next, sess.Role(), guard.AppRoutes),
	})
}

func (api *userApi) logout(ctx echo.Context) error {
	if err := api.s.opts.Sessions.Logout(ctx.Request().Context(), getContextSession(ctx)); err != nil {
		return errors.Wrap(err, "closing session")
	}
	clearSessionCookie(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.s.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	sess := getContextSession(ctx)
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: sess.User})
}

func (api *userApi) profile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// updateProfile saves the profile and merges it into the session, so the dashboards see the new name at once.
func (api *userApi) updateProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err := data.Validate(ctx.Request().Context(), usr, api.validate, api.svc); err != nil {
		return err
	}

	usr, err = api.svc.UpdateProfile(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	patch := session.ProfilePatch{FirstName: usr.FirstName, LastName: usr.LastName, Email: usr.Email}
	if err := api.s.opts.Sessions.UpdateProfile(ctx.Request().Context(), getContextSession(ctx), patch); err != nil {
		return errors.Wrap(err, "updating session profile")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// parentProfile answers an empty profile until the parent fills it in.
func (api *userApi) parentProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ParentProfile == nil {
		return ctx.JSON(http.StatusOK, user.ParentProfile{})
	}
	return ctx.JSON(http.StatusOK, usr.ParentProfile)
}

func (api *userApi) updateParentProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.ParentProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ParentProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err = api.svc.UpdateParentProfile(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating parent profile")
	}
	return ctx.JSON(http.StatusOK, usr.ParentProfile)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess := getContextSession(ctx)
	if _, err := api.svc.ChangePassword(ctx.Request().Context(), sess.UserID(), data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been changed."})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.s.opts.Logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

// User handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot grant a role above their own
	if data.Role.Level() > getContextSession(ctx).Role().Level() {
		return core.InvalidField("role", errNoPermsToSetRole)
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter, ok, err := bindUserFilter(ctx)
	if err != nil || !ok {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	sess := getContextSession(ctx)
	if usr.Role.Level() > sess.Role().Level() {
		return errHttpForbidden
	}
	if usr.ID == sess.UserID() && (data.IsActive != nil || data.Role != nil) {
		// nobody deactivates or demotes themselves
		return errHttpForbidden
	}

	if err := data.Validate(ctx.Request().Context(), usr, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot grant a role above their own
	if data.Role != nil && data.Role.Level() > sess.Role().Level() {
		return core.InvalidField("role", errNoPermsToSetRole)
	}

	usr, err := api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	sess := getContextSession(ctx)
	if usr.ID == sess.UserID() || usr.Role.Level() > sess.Role().Level() {
		return errHttpForbidden
	}

	if _, err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	sess := getContextSession(ctx)
	for _, id := range query.IDs {
		if id == sess.UserID() {
			return errHttpForbidden
		}
	}

	// nor users above them
	for _, id := range query.IDs {
		usr, err := api.svc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if usr.Role.Level() > sess.Role().Level() {
			return errHttpForbidden
		}
	}

	if _, err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// objectUserMiddleware loads the user of the `id` path param into the context.
func objectUserMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			ctx.Set(contextObjectKey, usr)
			return next(ctx)
		}
	}
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
		Next     string `json:"next"`
	}

	LoginResponse struct {
		Token    string             `json:"token"`
		User     *session.Principal `json:"user,omitempty"`
		Redirect string             `json:"redirect,omitempty"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
