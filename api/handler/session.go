package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/session"
)

// SessionStatus returns a handler for GET /api/v1/session. It never touches
// the browser.
func SessionStatus(sess Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.SessionResponse{Status: string(sess.Status())})
	}
}

// Login returns a handler for POST /api/v1/session/login.
//
// 200 when a valid session exists; 202 when a login window was opened and
// the caller must finish it and then POST /api/v1/session/resume.
func Login(sess Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := sess.EnsureLoggedIn(c.Request.Context())
		switch {
		case err == nil:
			c.JSON(http.StatusOK, models.SessionResponse{Status: string(session.StatusValid)})
		case models.HasCode(err, models.ErrCodeLoginRequired):
			c.JSON(http.StatusAccepted, models.SessionResponse{
				Status:  string(session.StatusPending),
				Message: "complete the login in the opened browser window, then POST /api/v1/session/resume",
			})
		default:
			code, body := errorStatus(err)
			c.JSON(code, models.SessionResponse{Status: string(sess.Status()), Error: body.Error})
		}
	}
}

// Resume returns a handler for POST /api/v1/session/resume.
func Resume(sess Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := sess.Resume(c.Request.Context()); err != nil {
			code, body := errorStatus(err)
			c.JSON(code, models.SessionResponse{Status: string(sess.Status()), Error: body.Error})
			return
		}
		c.JSON(http.StatusOK, models.SessionResponse{Status: string(session.StatusValid)})
	}
}

// CancelLogin returns a handler for DELETE /api/v1/session/login.
func CancelLogin(sess Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess.Cancel()
		c.JSON(http.StatusOK, models.SessionResponse{Status: string(sess.Status())})
	}
}
