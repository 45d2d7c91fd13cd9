package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	SessionCookie     = "pa_session"
	contextSessionKey = "session"
	contextClaimsKey  = "claims"
	tokenAudience     = "pueri-angeli"
)

// Claims represents the authorization claims transmitted via a JWT.
// The session is the source of truth; the role is informative.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	SessionID    string    `json:"sid"`
	Role         user.Role `json:"role"`
}

func NewClaims(conf *core.Config, sess *session.Session, origIat ...int64) *Claims {
	now := time.Now()

	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	exp := now.Add(conf.Server.JWTExpirationDelta)
	if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(exp) {
		exp = sess.ExpiresAt
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   sess.UserID(),
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		SessionID:    sess.ID,
		Role:         sess.Role(),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(secret string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(secret, raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// requestToken reads the token from the Authorization header, falling back to the session cookie.
func requestToken(ctx echo.Context) string {
	if h := ctx.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := ctx.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// sessionMiddleware loads the session a request's token points to.
// Requests without a valid token carry an anonymous session; the guards decide what they may reach.
func (s *server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess := session.Anonymous()

		if raw := requestToken(ctx); raw != "" {
			if claims, err := parseToken(s.opts.Conf.SecretKey, raw); err == nil {
				loaded, err := s.opts.Sessions.Load(ctx.Request().Context(), claims.SessionID)
				switch {
				case err == nil && loaded.UserID() == claims.Subject:
					live, err := s.liveSession(ctx, loaded)
					if err != nil {
						return err
					}
					if live {
						sess = loaded
						ctx.Set(contextClaimsKey, claims)
					}
				case err != nil && errors.Cause(err) != session.ErrNotFound:
					return errors.Wrap(err, "loading session")
				}
			}
		}

		ctx.Set(contextSessionKey, sess)
		return next(ctx)
	}
}

// liveSession reports whether the user behind sess still exists and is active.
// Sessions of deleted or deactivated users are revoked on their next use.
func (s *server) liveSession(ctx echo.Context, sess *session.Session) (bool, error) {
	reqCtx := ctx.Request().Context()
	usr, err := s.opts.UserSvc.GetByID(reqCtx, sess.UserID())
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return false, errors.Wrap(err, "finding session user")
		}
		return false, errors.Wrap(s.opts.Sessions.Logout(reqCtx, sess), "revoking session")
	}
	if err = s.opts.Sessions.Sync(reqCtx, sess, usr); err != nil {
		return false, errors.Wrap(err, "syncing session")
	}
	return sess.IsAuthenticated(), nil
}

// getContextSession never returns nil.
func getContextSession(ctx echo.Context) *session.Session {
	if sess, ok := ctx.Get(contextSessionKey).(*session.Session); ok && sess != nil {
		return sess
	}
	return session.Anonymous()
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return claims, nil
	}
	return nil, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	sess := getContextSession(ctx)
	if !sess.IsAuthenticated() {
		return user.User{}, errUnauthorized
	}
	usr, err := svc.GetByID(ctx.Request().Context(), sess.UserID())
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

func authenticate(ctx echo.Context, email, pwd string, svc user.Service) (user.User, error) {
	usr, err := svc.GetByEmail(ctx.Request().Context(), email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx.Request().Context(), usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// issueToken signs a token for sess and mirrors it in the session cookie.
func (s *server) issueToken(ctx echo.Context, sess *session.Session, origIat ...int64) (string, error) {
	token, err := GenerateToken(s.opts.Conf.SecretKey, NewClaims(s.opts.Conf, sess, origIat...))
	if err != nil {
		return "", err
	}
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   !(s.opts.Conf.Debug || s.opts.Conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (s *server) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	usr, err := getContextUser(ctx, s.opts.UserSvc)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", errUnauthorized
		}
		return "", errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(s.opts.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	sess := getContextSession(ctx)
	if err := s.opts.Sessions.Refresh(ctx.Request().Context(), sess); err != nil {
		return "", errors.Wrap(err, "refreshing session")
	}
	token, err := s.issueToken(ctx, sess, claims.OrigIssuedAt)
	return token, errors.Wrap(err, "generating token")
}
