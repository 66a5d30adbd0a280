package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

var errNoSession = errors.New("session not found")

// lookupSession resolves an opaque session token issued by cmd/issue-token.
func lookupSession(token string) (utils.SessionUser, error) {
	var user utils.SessionUser
	username, found, err := config.GetRedisValue(utils.SessionTokenKey(token))
	if err != nil {
		return user, err
	}
	if !found {
		return user, errNoSession
	}
	found, err = config.GetRedisObject(utils.SessionUserKey(username), &user)
	if err != nil {
		return user, err
	}
	if !found {
		return user, errNoSession
	}
	user.Username = username
	return user, nil
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// SessionMiddleware accepts the "token" header as an alternative to a bearer JWT. Without
// Redis every session token is rejected.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("token")
		if token == "" {
			c.Next()
			return
		}
		user, err := lookupSession(token)
		if err != nil {
			abortUnauthorized(c)
			return
		}
		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		c.Request = c.Request.WithContext(withUser(ctx, user))
		c.Next()
	}
}
