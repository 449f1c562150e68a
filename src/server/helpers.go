package server

import (
	"net/http"
	"strconv"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

// errorStatus maps the error taxonomy onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case helpers.IsValidationError(err):
		return http.StatusBadRequest
	case helpers.IsUpstreamError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"detail": ...}
func (s *FastAPIServer) fail(c *gin.Context, what string, err error) {
	status := errorStatus(err)
	detail := err.Error()
	switch status {
	case http.StatusBadRequest:
		s.Logger.Debug("%s: %v", what, err)
	case http.StatusBadGateway:
		s.Logger.Warning("%s: %v", what, err)
		detail = "Error fetching from upstream API: " + detail
	default:
		s.Logger.Error("%s: %v", what, err)
	}
	c.JSON(status, gin.H{"detail": detail})
}

// -----------------------------------------------------------------------------

// queryInt reads an optional bounded integer parameter
func queryInt(c *gin.Context, name string, def, min, max int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, helpers.NewValidationError("%s must be an integer in [%d, %d]", name, min, max)
	}
	return n, nil
}

// queryUnix reads an optional unix-seconds parameter, 0 when absent
func queryUnix(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, helpers.NewValidationError("%s must be a unix timestamp", name)
	}
	return n, nil
}

// queryDate reads an optional YYYY-MM-DD parameter, zero when absent
func queryDate(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		return time.Time{}, helpers.NewValidationError("%s must be YYYY-MM-DD", name)
	}
	return d, nil
}

func queryBool(c *gin.Context, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}
