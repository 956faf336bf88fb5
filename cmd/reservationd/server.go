// cmd/reservationd/server.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/cache"
	"github.com/courtbook/courtbook/internal/clients"
	"github.com/courtbook/courtbook/internal/config"
	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/notify"
	"github.com/courtbook/courtbook/internal/ratelimit"
	"github.com/courtbook/courtbook/internal/reservations"
	"github.com/courtbook/courtbook/internal/scheduler"
)

const notifySweepCron = "*/5 * * * *"

type app struct {
	server    *http.Server
	scheduler *scheduler.Service
	database  *db.DB
}

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.New(cfg.Database.Filename, reservations.MigrationFS(), reservations.MigrationDir)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	timeout := cfg.Remotes.Timeout()
	courts := clients.NewCourtClient(cfg.Remotes.CourtURL, timeout)
	clubs := clients.NewClubClient(cfg.Remotes.ClubURL, timeout)
	users := clients.NewUserClient(cfg.Remotes.UserURL, timeout)

	names := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL(), nil)

	notifyStore := notify.NewStore(database).WithMaxRetries(cfg.Notify.MaxRetries)
	var sender notify.EmailSender
	if cfg.Notify.SESAccessKeyID != "" {
		ses, err := notify.NewSESClient(
			cfg.Notify.SESAccessKeyID,
			cfg.Notify.SESSecretAccessKey,
			cfg.Notify.SESRegion,
			cfg.Notify.Sender,
		)
		if err != nil {
			return nil, fmt.Errorf("error creating ses client: %w", err)
		}
		sender = ses
	} else {
		log.Warn().Msg("SES credentials not configured, notifications will be recorded but not sent")
	}
	notifier := notify.NewService(notifyStore, sender)

	store := reservations.NewStore(database)
	service := reservations.NewService(store, courts, clubs, users, names,
		reservations.WithNotifier(notifier))
	reservations.InitHandlers(service)

	sched, err := scheduler.New()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("error creating scheduler: %w", err)
	}

	sweepCron := cfg.Notify.SweepCron
	if sweepCron == "" {
		sweepCron = notifySweepCron
	}
	_, err = sched.AddJob("notification-retry-sweep", sweepCron, func() {
		ctx, cancel := contextWithLogger(30 * time.Second)
		defer cancel()
		if err := notifier.SweepRetries(ctx); err != nil {
			log.Error().Err(err).Msg("notification retry sweep failed")
		}
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("error scheduling notification sweep: %w", err)
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

	mux.HandleFunc("GET /api/reservations", reservations.HandleList)
	mux.HandleFunc("GET /api/reservations/my-reservations", reservations.HandleMyReservations)
	mux.HandleFunc("GET /api/reservations/conflicts", reservations.HandleConflicts)
	mux.HandleFunc("GET /api/reservations/conflicts/details", reservations.HandleConflictDetails)
	mux.HandleFunc("GET /api/reservations/{id}", reservations.HandleGet)
	mux.HandleFunc("POST /api/reservations", reservations.HandleCreate)
	mux.HandleFunc("PUT /api/reservations/{id}", reservations.HandleUpdate)
	mux.HandleFunc("DELETE /api/reservations/{id}", reservations.HandleDelete)
	mux.HandleFunc("GET /api/reservations/{id}/exists", reservations.HandleExists)
	mux.HandleFunc("PATCH /api/reservations/{id}/payment-status", reservations.HandleUpdatePaymentStatus)
	mux.HandleFunc("POST /api/reservations/{id}/apply-payment", reservations.HandleApplyPayment)
	mux.HandleFunc("GET /api/reservations/{id}/pending-amount", reservations.HandlePendingAmount)
	mux.HandleFunc("GET /api/reservations/{id}/total-amount", reservations.HandleTotalAmount)
}
