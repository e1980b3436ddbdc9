package main

import (
	"context"
	"estimate-backend/cmd"
	"estimate-backend/internal/api"
	"estimate-backend/internal/config"
	"estimate-backend/internal/database"
	"estimate-backend/internal/notify"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	log.Println("Starting Estimate API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cmd.ConfigureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := cmd.CreateDatabase(cfg)

	archive := cmd.CreateCaptureArchive(ctx, cfg)

	service := cmd.CreateEstimateService(cfg, database.NewOutcomeStore(db), archive)

	var wg sync.WaitGroup

	// Reclaims directories left behind by a previous crash before serving.
	sweeper := cmd.NewSweeper(cfg, service.Reaper())
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx, cfg.SweepInterval)
	}()

	notifier, closeNotifier := cmd.CreateNotifier(cfg)
	defer closeNotifier()
	if notifier != nil {
		dispatcher := notify.NewDispatcher(db, notifier, cfg.NotifyMaxAttempts)
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx, cfg.NotifyInterval)
		}()
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CorsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{api.EstimateIdHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Long enough for a full slicer run plus queueing for a slot.
	r.Use(middleware.Timeout(cfg.SlicerTimeout + cfg.SlicerAdmissionWait + 30*time.Second))

	var captures api.CaptureFetcher
	if archive != nil {
		captures = archive
	}
	apiHandler := api.NewBackendService(db, service, captures, cfg.MaxUploadBytes)
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SlicerTimeout+30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("API server listening", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.APIPort, err)
	}

	wg.Wait()
	log.Println("Server stopped.")
}
