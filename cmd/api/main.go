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
	"go.uber.org/zap"

	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/config"
	"hrdesk.org/internal/httpapi"
	"hrdesk.org/internal/mailer"
	"hrdesk.org/internal/obs"
	"hrdesk.org/internal/reset"
)

var (
	version = "1.2.0"
	commit  = "dev"
)

func main() {
	cfg := config.Load()

	obs.InitLogger(cfg.Environment)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		log.Fatal("HRDESK_JWT_SECRET is required")
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		log.Fatal("HRDESK_PG_DSN is required")
	}

	issuerOpts := []auth.IssuerOption{}
	if cfg.JWTSecretFallback != "" {
		issuerOpts = append(issuerOpts, auth.WithFallbackSecret(cfg.JWTSecretFallback))
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, issuerOpts...)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	store := auth.NewPGStore(db)
	authSvc, err := auth.NewService(store, issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var mail mailer.Sender
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("SMTP host not configured, mail goes to the log")
		mail = mailer.NewLogSender(logger)
	}

	resetFlow, err := reset.NewFlow(store, mail,
		reset.WithOTPTTL(cfg.OTPTTL),
		reset.WithResetTokenTTL(cfg.ResetTokenTTL),
		reset.WithExpiryCutover(cfg.PasswordExpiryCutover),
		reset.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("reset flow: %v", err)
	}

	api := httpapi.New(cfg, authSvc, resetFlow, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting hrdesk-auth",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("environment", cfg.Environment),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	logger.Info("stopped")
}
