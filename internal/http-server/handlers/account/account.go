package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chartscan/entity"
	"chartscan/internal/http-server/handlers/errors"
	"chartscan/internal/ledger"
	"chartscan/lib/api/cont"
	"chartscan/lib/api/response"
	"chartscan/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	AccountSummary(ctx context.Context, userID int64) (*entity.Summary, error)
	ScanHistory(ctx context.Context, userID int64, limit int) ([]*entity.ScanRecord, error)
	GrantCredits(ctx context.Context, userID int64, amount int, source string) (int, error)
	ActivatePremium(ctx context.Context, userID int64, days int) (time.Time, error)
	ApplyReferral(ctx context.Context, userID int64, code string) (ledger.ReferralOutcome, error)
}

type GrantResult struct {
	UserID       int64 `json:"user_id"`
	BonusCredits int   `json:"bonus_credits"`
}

type PremiumResult struct {
	UserID       int64     `json:"user_id"`
	PremiumUntil time.Time `json:"premium_until"`
}

type ReferralResult struct {
	UserID  int64                  `json:"user_id"`
	Outcome ledger.ReferralOutcome `json:"outcome"`
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	return id, nil
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.account"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("client", cont.GetUser(r.Context()).Username),
	)
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, response.Error(message))
}

func Summary(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		id, err := userID(r)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}

		summary, err := handler.AccountSummary(r.Context(), id)
		if err != nil {
			logger.With(sl.User(id), sl.Err(err)).Error("account summary")
			errors.Render(w, r, err, "Account summary")
			return
		}
		render.JSON(w, r, response.Ok(summary))
	}
}

func Scans(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		id, err := userID(r)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			if limit, err = strconv.Atoi(s); err != nil {
				badRequest(w, r, "Invalid limit")
				return
			}
		}

		scans, err := handler.ScanHistory(r.Context(), id, limit)
		if err != nil {
			logger.With(sl.User(id), sl.Err(err)).Error("scan history")
			errors.Render(w, r, err, "Scan history")
			return
		}
		render.JSON(w, r, response.Ok(scans))
	}
}

func Grant(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		id, err := userID(r)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		var req entity.GrantRequest
		if err = render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			badRequest(w, r, fmt.Sprintf("Invalid request: %v", err))
			return
		}

		balance, err := handler.GrantCredits(r.Context(), id, req.Amount, req.Source)
		if err != nil {
			logger.With(sl.User(id), sl.Err(err)).Error("grant credits")
			errors.Render(w, r, err, "Grant")
			return
		}
		render.JSON(w, r, response.Ok(GrantResult{UserID: id, BonusCredits: balance}))
	}
}

func Premium(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		id, err := userID(r)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		var req entity.PremiumRequest
		if err = render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			badRequest(w, r, fmt.Sprintf("Invalid request: %v", err))
			return
		}

		until, err := handler.ActivatePremium(r.Context(), id, req.Days)
		if err != nil {
			logger.With(sl.User(id), sl.Err(err)).Error("activate premium")
			errors.Render(w, r, err, "Premium")
			return
		}
		render.JSON(w, r, response.Ok(PremiumResult{UserID: id, PremiumUntil: until}))
	}
}

func Referral(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)
		id, err := userID(r)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		var req entity.ReferralRequest
		if err = render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			badRequest(w, r, fmt.Sprintf("Invalid request: %v", err))
			return
		}

		outcome, err := handler.ApplyReferral(r.Context(), id, req.Code)
		if err != nil {
			logger.With(sl.User(id), sl.Err(err)).Error("apply referral")
			errors.Render(w, r, err, "Referral")
			return
		}
		if outcome.Rejected() {
			render.Status(r, http.StatusUnprocessableEntity)
		}
		render.JSON(w, r, response.Ok(ReferralResult{UserID: id, Outcome: outcome}))
	}
}
