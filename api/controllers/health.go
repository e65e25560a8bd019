package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tably-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, pingers ...db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tably-Env", cfg.App.Env)

		var combined error
		for _, pinger := range pingers {
			if pinger == nil {
				continue
			}
			combined = multierr.Append(combined, pinger.Ping(r.Context()))
		}
		if combined != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, combined, "dependency not ready"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
