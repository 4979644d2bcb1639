package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"yamato/config"
	"yamato/database"
	"yamato/loader"
	"yamato/logging"
	"yamato/metrics"
	"yamato/scheduler"
	"yamato/units"
)

func main() {
	srv, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(srv.LogLevel, srv.LogFormat)

	config.SetFilePath(srv.ConfigPath)
	settings, err := config.LoadSettings()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config file. Using defaults.")
	}

	log.Info().Str("path", srv.DBPath).Msg("Connecting to database...")
	dbConn, err := database.Open(srv.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("db open error")
	}
	defer dbConn.Close()

	if err := loader.InitDatabase(dbConn, settings); err != nil {
		log.Fatal().Err(err).Msg("Database initialization failed")
	}
	log.Info().Msg("Database initialization complete.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	domain := metrics.NewDomain(reg)

	sched := scheduler.New(units.Default, domain)
	if err := sched.ReloadUnits(); err != nil {
		log.Warn().Err(err).Msg("Failed to load TANI.CSV. Unit names may not display correctly.")
	}
	if err := sched.Start(settings.UnitReloadAt); err != nil {
		log.Error().Err(err).Msg("unit reload schedule disabled")
	}
	defer sched.Stop()

	r := chi.NewRouter()
	SetupRoutes(r, &app{
		db:        dbConn,
		store:     units.Default,
		scheduler: sched,
		logger:    logger,
		http:      metrics.NewHTTP(reg),
		domain:    domain,
		gatherer:  reg,
	})

	server := &http.Server{
		Addr:              srv.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", server.Addr).Msgf("Starting server on %s", srv.URL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server start error")
		}
	}()

	if srv.OpenBrowser {
		openBrowser(srv.URL())
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = exec.Command("xdg-open", url).Start()
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to open browser")
	}
}
