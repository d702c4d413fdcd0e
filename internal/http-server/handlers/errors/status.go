package errors

import (
	"fmt"
	"net/http"

	"chartscan/internal/ledger"
	"chartscan/lib/api/response"

	"github.com/go-chi/render"
)

// Status maps a ledger or payment error to the HTTP status returned to API clients.
func Status(err error) int {
	switch {
	case ledger.IsValidation(err):
		return http.StatusBadRequest
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Render writes err with the status from Status. Storage and provider
// outages are flagged retryable in the envelope.
func Render(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := Status(err)
	render.Status(r, status)
	if status == http.StatusServiceUnavailable {
		render.JSON(w, r, response.Unavailable(fmt.Sprintf("%s: service unavailable, retry later", action)))
		return
	}
	render.JSON(w, r, response.Error(fmt.Sprintf("%s: %v", action, err)))
}
