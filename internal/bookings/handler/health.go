package handler

import (
	"context"
	"net/http"
	"reservo/pkg/config"
	apperrors "reservo/pkg/errors"
	pkghttp "reservo/pkg/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type HealthHandler struct {
	cfg     *config.Config
	service string
}

func NewHealthHandler(cfg *config.Config, service string) *HealthHandler {
	return &HealthHandler{
		cfg:     cfg,
		service: service,
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": h.service,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready verifies the Mongo connection so load balancers stop routing to an
// instance that lost its database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.cfg.Client.Mongo.Ping(ctx, readpref.Primary()); err != nil {
		h.cfg.Log.Error("Readiness check failed", "error", err)
		pkghttp.WriteError(w, apperrors.Unavailable("Database"))
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"service": h.service,
	})
}
