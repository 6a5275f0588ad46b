package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/example/bannerdesk/internal/config"
	"github.com/example/bannerdesk/internal/gallery"
	"github.com/example/bannerdesk/internal/httpapi"
	"github.com/example/bannerdesk/internal/leads"
	"github.com/example/bannerdesk/internal/media"
	"github.com/example/bannerdesk/internal/notify"
	"github.com/example/bannerdesk/internal/site"
	"github.com/example/bannerdesk/internal/store"
	"github.com/example/bannerdesk/migrations"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var level slog.Level
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("version", version)

	catalog, err := httpapi.LoadCatalog(cfg.OptionsFile)
	if err != nil {
		logger.Error("failed to load form options", "error", err)
		os.Exit(1)
	}

	if err := migrations.Up(cfg.DBDriver, cfg.DBDSN); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to open db", "error", err)
		os.Exit(1)
	}
	st := store.New(db)

	var notifier leads.Notifier = notify.Nop{}
	if cfg.SMTP.Enabled() {
		mailer, err := notify.NewMailer(notify.MailerConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromName:  cfg.SMTP.FromName,
			FromEmail: cfg.SMTP.FromEmail,
			To:        cfg.SMTP.NotifyTo,
			Location:  cfg.Location(),
		})
		if err != nil {
			logger.Error("failed to configure mailer", "error", err)
			os.Exit(1)
		}
		notifier = mailer
		logger.Info("lead notifications enabled", "smtp_host", cfg.SMTP.Host)
	}

	encoder := media.NewEncoder(media.WithMaxPixels(cfg.MaxPixels))
	gallerySvc := gallery.NewService(st, encoder,
		gallery.WithConcurrency(cfg.UploadConcurrency),
		gallery.WithLogger(logger.With("component", "gallery")),
	)
	leadsSvc := leads.NewService(st, notifier, logger.With("component", "leads"))

	sessions, err := httpapi.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("failed to set up sessions", "error", err)
		os.Exit(1)
	}

	router, err := httpapi.NewRouter(cfg, httpapi.Deps{
		Ready:    st,
		Gallery:  gallerySvc,
		Leads:    leadsSvc,
		Settings: site.New(st),
		Catalog:  catalog,
		Sessions: sessions,
	}, logger)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	// Other instances writing to the same database are picked up by polling.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	go gallerySvc.Feed().Watch(watchCtx, cfg.FeedPollInterval, st.ImagesVersion)
	go leadsSvc.Feed().Watch(watchCtx, cfg.FeedPollInterval, st.CustomersVersion)

	srv := httpapi.NewHTTPServer(cfg.Bind, router)
	go func() {
		logger.Info("server starting", "addr", cfg.Bind, "db_driver", cfg.DBDriver, "auth_mode", cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down gracefully")
	stopWatch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	leadsSvc.Wait()

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
}
