package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinMiddleware renders the last gin.Error attached to the context (via
// `c.Error(err)`) as a JSON body with the AppError's status code, falling
// back to 500 for plain errors. Matches spec.md §7's "ValidationError ...
// returned as an ordinary HTTP 4xx before the stream begins" rule.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if ae, ok := As(err); ok {
			c.JSON(ae.HTTPStatus, ae)
			return
		}

		c.JSON(http.StatusInternalServerError, &AppError{
			Code:    KindInternal,
			Message: err.Error(),
		})
	}
}
