package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/danfigueroa/loomi-sub000/shared/correlation"
	"github.com/danfigueroa/loomi-sub000/shared/utils"
)

// CorrelationMiddleware reads the x-correlation-id header, generating a fresh
// id when absent, stores it in the request context and echoes it back in the
// response so callers can link their logs to ours.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlation.Header)
		if id == "" {
			id = utils.NewCorrelationID()
		}

		c.Request = c.Request.WithContext(correlation.With(c.Request.Context(), id))
		c.Header(correlation.Header, id)
		c.Next()
	}
}
