package stripeclient

import (
	"errors"
	"fmt"
	"net/http"

	"chartscan/internal/store"

	"github.com/stripe/stripe-go/v76"
)

// parseErr shortens a Stripe API error to status, code and message. Rate
// limits and Stripe-side failures are marked unavailable so callers retry.
func parseErr(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Errorf("status %d %s: %s", se.HTTPStatusCode, se.Code, se.Msg)
	if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError {
		return store.Unavailable("stripe", msg)
	}
	return msg
}
