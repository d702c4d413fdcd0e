package stats

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"chartscan/entity"
	"chartscan/internal/http-server/handlers/errors"
	"chartscan/lib/api/response"
	"chartscan/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
	Stats(ctx context.Context) (*entity.Stats, error)
}

func Leaderboard(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.stats"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			var err error
			if limit, err = strconv.Atoi(s); err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("Invalid limit"))
				return
			}
		}

		entries, err := handler.Leaderboard(r.Context(), limit)
		if err != nil {
			logger.Error("leaderboard", sl.Err(err))
			errors.Render(w, r, err, "Leaderboard")
			return
		}
		render.JSON(w, r, response.Ok(entries))
	}
}

func Stats(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := handler.Stats(r.Context())
		if err != nil {
			log.With(
				sl.Module("http.handlers.stats"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			).Error("stats", sl.Err(err))
			errors.Render(w, r, err, "Stats")
			return
		}
		render.JSON(w, r, response.Ok(stats))
	}
}
