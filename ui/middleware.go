package ui

import (
	"net/http"

	"hypoforge/adapters/auth"
	"hypoforge/internal/errors"
	"hypoforge/internal/session"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// sessionMiddleware attaches the caller's session, issuing a cookie for new ones
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(SessionCookie)
		sess, created := s.deps.Sessions.GetOrCreate(cookie)
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sess.ID.String(), 0, "/", "", false, true)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// credential resolves the session's bearer token from the browser's cookies
func (s *Server) credential(c *gin.Context) (string, error) {
	return currentSession(c).Credential(c.Request.Context(), s.deps.Tokens, c.Request.Cookies())
}

// statusFor maps an error code to an HTTP status
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeAuthMissing:
		return http.StatusUnauthorized
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeTestInFlight:
		return http.StatusConflict
	case errors.CodeValidationError, errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeExternalService, errors.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes {"code","message"} and, for AUTH_MISSING, the login link
func (s *Server) abortWithError(c *gin.Context, err error) {
	body := gin.H{"code": errors.GetCode(err), "message": err.Error()}
	if errors.Is(err, errors.CodeAuthMissing) {
		body["login_url"] = s.loginURL(c)
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}

func (s *Server) loginURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return auth.LoginURL(s.deps.LoginURL, scheme+"://"+c.Request.Host+"/")
}
