package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetgrid.io/internal/auth"
	"fleetgrid.io/internal/config"
	"fleetgrid.io/internal/httpapi"
	"fleetgrid.io/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("FLEETGRID_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cfg.PGDSN == "" {
		log.Fatal("missing DSN: set FLEETGRID_PG_DSN")
	}
	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	codec, err := auth.NewCodec(cfg.TokenSecret, cfg.TokenIssuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	store := auth.NewPGStore(db)
	svc, err := auth.NewService(store, codec,
		auth.WithNotifier(auth.LogNotifier{}),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithCodeTTL(cfg.CodeTTL),
		auth.WithLockout(cfg.LockoutThreshold, cfg.LockoutWindow),
		auth.WithPasswordPolicy(auth.Policy{
			MinLength:      cfg.PasswordMinLength,
			MaxLength:      cfg.PasswordMaxLength,
			RequireUpper:   cfg.PasswordRequireUpper,
			RequireLower:   cfg.PasswordRequireLower,
			RequireDigit:   cfg.PasswordRequireDigit,
			RequireSpecial: cfg.PasswordRequireSpecial,
		}),
		auth.WithRefreshRotation(cfg.RefreshRotation),
		auth.WithFingerprintSalt(cfg.FingerprintSalt),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweeper := auth.NewSweeper(store, cfg.SweepInterval, cfg.AttemptRetention)
	go sweeper.Run(sweepCtx)

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version, httpapi.RateLimitConfig{
		Burst:     cfg.RateLimitBurst,
		PerSecond: cfg.RateLimitPerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting fleetgrid-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
