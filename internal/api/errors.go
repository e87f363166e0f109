package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendsync/internal/attendance"
)

// errTooLarge marks an upload over the configured limit.
var errTooLarge = errors.New("file too large")

// writeError maps domain errors to a status and a JSON body. Unknown
// errors are logged and reported as a store failure.
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": verr.Error()}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case errors.Is(err, errTooLarge):
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
	case errors.Is(err, attendance.ErrAccessDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access Denied: You are not an authorized faculty member."})
	case errors.Is(err, attendance.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, attendance.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "storage request failed, please try again"})
	}
}
