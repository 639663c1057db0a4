package handlers

import "github.com/gin-gonic/gin"

// SessionUserKey is the gin context key under which the authentication
// middleware stores the session user ID.
const SessionUserKey = "session_user_id"

// sessionUserID returns the authenticated user ID set by the middleware.
func sessionUserID(c *gin.Context) string {
	return c.GetString(SessionUserKey)
}
