// cmd/paymentd/server.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/clients"
	"github.com/courtbook/courtbook/internal/config"
	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/outbox"
	"github.com/courtbook/courtbook/internal/payments"
	"github.com/courtbook/courtbook/internal/ratelimit"
	"github.com/courtbook/courtbook/internal/scheduler"
)

const outboxSweepCron = "* * * * *"

type app struct {
	server    *http.Server
	scheduler *scheduler.Service
	database  *db.DB
}

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.New(cfg.Database.Filename, payments.MigrationFS(), payments.MigrationDir)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	bridge := clients.NewReservationClient(cfg.Remotes.ReservationURL, cfg.Remotes.Timeout())
	outboxStore := outbox.NewStore(database)

	opts := []payments.ServiceOption{}
	if cfg.Payment.MaxAmount != "" {
		max, err := decimal.NewFromString(cfg.Payment.MaxAmount)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("invalid payment max_amount: %w", err)
		}
		opts = append(opts, payments.WithMaxAmount(max))
	}

	store := payments.NewStore(database)
	service := payments.NewService(store, bridge, outboxStore, opts...)
	payments.InitHandlers(service)

	sched, err := scheduler.New()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("error creating scheduler: %w", err)
	}

	sweeper := outbox.NewSweeper(outboxStore, bridge, cfg.Outbox.MaxAttempts)
	sweepCron := cfg.Outbox.SweepCron
	if sweepCron == "" {
		sweepCron = outboxSweepCron
	}
	_, err = sched.AddJob("reconciliation-outbox-sweep", sweepCron, func() {
		ctx, cancel := contextWithLogger(30 * time.Second)
		defer cancel()
		if err := sweeper.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("outbox sweep failed")
		}
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("error scheduling outbox sweep: %w", err)
	}

	router := http.NewServeMux()
	registerRoutes(router)

	handler := api.ChainMiddleware(
		router,
		api.WithRateLimit(ratelimit.New(nil)),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	return &app{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.App.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		scheduler: sched,
		database:  database,
	}, nil
}

// contextWithLogger builds a background context for cron jobs that carries
// the process logger, so job code can use log.Ctx the way handlers do.
func contextWithLogger(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := log.Logger.WithContext(context.Background())
	return context.WithTimeout(ctx, timeout)
}

func (a *app) Close() {
	if err := a.database.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /api/payments", payments.HandleList)
	mux.HandleFunc("GET /api/payments/by-reservation/{reservationId}", payments.HandleListByReservation)
	mux.HandleFunc("GET /api/payments/by-reservation/{reservationId}/total-paid", payments.HandleTotalPaid)
	mux.HandleFunc("GET /api/payments/by-status/{status}", payments.HandleListByStatus)
	mux.HandleFunc("GET /api/payments/{id}", payments.HandleGet)
	mux.HandleFunc("POST /api/payments", payments.HandleCreate)
	mux.HandleFunc("PUT /api/payments/{id}", payments.HandleUpdate)
	mux.HandleFunc("DELETE /api/payments/{id}", payments.HandleDelete)
	mux.HandleFunc("GET /api/payments/{id}/exists", payments.HandleExists)
	mux.HandleFunc("PUT /api/payments/{id}/cancel-by-reason", payments.HandleCancelByReason)
}
