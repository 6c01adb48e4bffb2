package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/ingest/internal/interfaces/http/dto"
)

// multipartOverhead allows for form boundaries and headers around an upload
const multipartOverhead = 1 << 20

// BodyLimit rejects requests whose body exceeds maxBytes plus multipart overhead
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	limit := maxBytes + multipartOverhead
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodePayloadTooLarge, "Request body exceeds maximum allowed size"))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
