package payment

import (
	"fmt"
	"log/slog"
	"net/http"

	"chartscan/entity"
	"chartscan/internal/http-server/handlers/errors"
	"chartscan/lib/api/response"
	"chartscan/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	StripeCheckout(req *entity.CheckoutRequest) (*entity.PaymentLink, error)
}

func Checkout(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.payment")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("stripe service not available")
			render.JSON(w, r, response.Error("Stripe service not available"))
			return
		}

		var req entity.CheckoutRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(
			sl.User(req.UserID),
			slog.String("product", string(req.Product)),
			slog.Int("quantity", req.Quantity),
		)

		link, err := handler.StripeCheckout(&req)
		if err != nil {
			logger.Error("get payment link", sl.Err(err))
			if errors.Status(err) == http.StatusServiceUnavailable {
				errors.Render(w, r, err, "Get link")
				return
			}
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Get link: %v", err)))
			return
		}
		logger.Debug("payment link created")

		render.JSON(w, r, response.Ok(link))
	}
}
