// Package httpapi wires gin handlers for every endpoint spec.md §6 names,
// on top of the coordinator/auth/metrics layers beneath it.
//
// The handler/router split and the {status, issues} error envelope follow
// cklxx-elephant.ai's router.go / api_handler_tasks.go shape, adapted from
// a bare http.ServeMux to gin so request binding and validation go through
// gin's validator/v10 integration instead of hand-rolled decode+check
// blocks.
package httpapi

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/banyan/banyan/internal/bnerr"
)

// errorEnvelope is the {status, issues} body spec.md §7 requires for every
// non-2xx response.
type errorEnvelope struct {
	Status string            `json:"status"`
	Issues map[string]string `json:"issues,omitempty"`
}

// writeError translates a bnerr.Error (or any other error) into the right
// HTTP status and envelope, following the error_mapper.go sentinel-match
// pattern: branch on Kind, never on message text.
func writeError(c *gin.Context, err error) {
	var be *bnerr.Error
	if !errors.As(err, &be) {
		c.JSON(500, errorEnvelope{Status: "internal error: " + err.Error()})
		return
	}
	status := 500
	switch be.Kind {
	case bnerr.KindUnauthorized:
		status = 401
	case bnerr.KindValidationFailed:
		status = 422
	case bnerr.KindNotFound:
		status = 404
	case bnerr.KindConflict:
		status = 409
	case bnerr.KindTransient:
		status = 503
	case bnerr.KindFatal:
		status = 500
	}
	c.JSON(status, errorEnvelope{Status: be.Message, Issues: be.Issues})
}
