package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/sirupsen/logrus"
)

const CorrelationHeader = "X-Correlation-Id"

// Correlation propagates the caller's correlation id, or a new one, into the request context
// and echoes it on the response.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header(CorrelationHeader, cid)
		c.Next()
	}
}

// ErrorLogger logs the errors handlers attached with c.Error, and nothing else.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		logger.WithFields(config.OperationFields(c.Request.Context(), c.FullPath(), logrus.Fields{
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		})).Error(c.Errors.String())
	}
}
