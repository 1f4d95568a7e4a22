package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Rudra370/s3manager/api"
	"github.com/Rudra370/s3manager/pkg/accounts"
	"github.com/Rudra370/s3manager/pkg/config"
	"github.com/Rudra370/s3manager/pkg/s3client"
	"github.com/Rudra370/s3manager/pkg/shares"
	"github.com/Rudra370/s3manager/pkg/tasks"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	accountRepo, err := accounts.NewRepository(db)
	if err != nil {
		return err
	}
	shareRepo, err := shares.NewRepository(db)
	if err != nil {
		return err
	}
	shareService := shares.NewService(shareRepo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := tasks.NewStore(tasks.StoreConfig{
		TerminalTTL: cfg.TaskRetention,
		MaxAge:      cfg.TaskMaxAge,
	})
	manager := tasks.NewManager(ctx, store, cfg.TaskWorkers, logrus.NewEntry(log))

	scheduler := cron.New()
	scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), func() {
		if n := store.Sweep(); n > 0 {
			log.WithField("count", n).Debug("swept expired tasks")
		}
	})
	scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.SharePurgePeriod), func() {
		n, err := shareRepo.PurgeExpired(context.Background())
		if err != nil {
			log.WithError(err).Warn("failed to purge expired share links")
			return
		}
		if n > 0 {
			log.WithField("count", n).Info("purged expired share links")
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	server := api.New(cfg, log, store, manager, accountRepo, shareService, s3client.NewCache())
	router := server.SetupRouter()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("forced shutdown")
	}

	// Let running tasks reach a checkpoint and record their state.
	manager.Wait()
	return nil
}

func openDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}
