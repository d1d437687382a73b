package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/handler"
	"github.com/popeskul/insdr-dispatcher/internal/middleware"
)

func setupRouter(h api.ServerInterface, cfg *config.Config, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, "api/openapi.yaml")
	})

	return api.HandlerWithOptions(h, api.ChiServerOptions{
		BaseRouter: r,
		Middlewares: []api.MiddlewareFunc{
			middleware.BearerAuth(cfg.Trigger.Secret, logger),
		},
		ErrorHandlerFunc: handler.ParamErrorHandler(logger),
	})
}
