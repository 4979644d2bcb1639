package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"yamato/client"
	"yamato/inout"
	"yamato/loader"
	"yamato/logging"
	"yamato/metrics"
	"yamato/scheduler"
	"yamato/units"
)

// app はルーティングに必要な依存をまとめたものです。
type app struct {
	db        *sqlx.DB
	store     *units.Store
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
	http      *metrics.HTTP
	domain    *metrics.Domain
	gatherer  prometheus.Gatherer
}

func SetupRoutes(r chi.Router, a *app) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(a.logger))
	if a.http != nil {
		r.Use(a.http.Middleware)
	}

	r.Get("/health", healthHandler(a))
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/inout", func(r chi.Router) {
			r.Get("/search", inout.SearchHandler(a.db))
			r.Get("/drug/{jan}", inout.DrugByJanHandler(a.db))
			r.Post("/save", inout.SaveHandler(a.db, a.domain))
			r.Post("/calculate", inout.CalculateHandler(a.store, a.domain))
			r.Get("/receipts", inout.ReceiptsHandler(a.db))
			r.Get("/next-slip", inout.NextSlipNumberHandler(a.db))
			r.Get("/slip/{number}", inout.GetSlipHandler(a.db))
			r.Delete("/slip/{number}", inout.DeleteSlipHandler(a.db, a.domain))
		})

		r.Get("/units/map", units.GetTaniMapHandler(a.store))
		r.Post("/units/reload", reloadUnitsHandler(a))

		r.Get("/clients", client.ListClientsHandler(a.db))
		r.Post("/clients", client.RegisterClientHandler(a.db, a.domain))
		r.Post("/clients/import", client.ImportClientsHandler(a.db))

		r.Get("/config", GetConfigHandler())
		r.Post("/config", SaveConfigHandler())

		r.Post("/masters/reload", loader.ReloadMastersHandler(a.db, a.store))
	})
}

func healthHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{"status": "ok", "units": a.store.Len()}
		if err := a.db.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		}
		if a.scheduler != nil {
			if at, err := a.scheduler.LastRun(); !at.IsZero() {
				body["unitsLoadedAt"] = at
				if err != nil {
					body["unitsError"] = err.Error()
				}
			}
		}
		writeJSON(w, status, body)
	}
}

// reloadUnitsHandler は TANI.CSV だけを読み直します。失敗しても今の対応表で動き続けます。
func reloadUnitsHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.scheduler == nil {
			writeJSONError(w, "単位マスタの再読込は利用できません。", http.StatusServiceUnavailable)
			return
		}
		if err := a.scheduler.ReloadUnits(); err != nil {
			a.logger.Warn().Err(err).Msg("unit reload failed; keeping the current unit map")
			writeJSONError(w, "単位マスタの再読込に失敗しました: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "単位マスタを再読込しました。",
			"units":   a.store.Len(),
		})
	}
}
