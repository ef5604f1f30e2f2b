package main

import (
	"context"

	"github.com/mroshb/rallypoint/internal/config"
	"github.com/mroshb/rallypoint/internal/database"
	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/internal/notify"
	"github.com/mroshb/rallypoint/internal/queue"
	"github.com/mroshb/rallypoint/internal/services"
	"github.com/mroshb/rallypoint/pkg/logger"
	"github.com/mroshb/rallypoint/pkg/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "rallypoint",
	Short: "Rally point movement and siege combat engine",
	Long: `rallypoint schedules troop movements between villages, resolves battles on
arrival and brings survivors home.

Commands:
  serve     HTTP API (optionally with an embedded worker)
  worker    queue worker that fires departures, arrivals and returns
  migrate   create or update the database schema
  seed      create a small demo world
  export    write movements and combat reports to an XLSX workbook`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, seedCmd, exportCmd)
}

// app holds the components shared by the long-running commands.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	rules     *config.RulesProvider
	bus       *events.Bus
	store     *queue.Store
	movements *services.MovementService
	waves     *services.WaveService
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateProductionSecurity(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	rules, err := config.NewRulesProvider(afero.NewOsFs(), cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	clock := utils.SystemClock()
	bus := events.NewBus()
	store := queue.NewStore(db, clock, queue.Options{
		MaxAttempts:  cfg.QueueMaxAttempts,
		RetryBackoff: cfg.QueueRetryBackoff,
	})
	movements := services.NewMovementService(
		services.NewDeps(db, store, rules, clock, bus),
		services.OptionsFromConfig(cfg),
	)

	return &app{
		cfg:       cfg,
		db:        db,
		rules:     rules,
		bus:       bus,
		store:     store,
		movements: movements,
		waves:     services.NewWaveService(movements),
	}, nil
}

// startBackground starts the rules watcher and the lifecycle subscriber.
func (a *app) startBackground(ctx context.Context) error {
	if a.cfg.RulesWatch {
		if err := a.rules.Watch(ctx); err != nil {
			return err
		}
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if a.cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(a.cfg.TelegramBotToken, a.cfg.TelegramChatID, a.cfg.AppEnv == "development")
		if err != nil {
			logger.Warn("Telegram notifications disabled", "error", err)
		} else {
			notifier = tg
		}
	}
	return a.bus.Subscribe(ctx, notify.NewSubscriber(notifier).Handle)
}

func (a *app) newWorker() *queue.Worker {
	w := queue.NewWorker(a.store, queue.WorkerConfig{
		ID:           a.cfg.WorkerID,
		PollInterval: a.cfg.WorkerPollInterval,
		BatchSize:    a.cfg.WorkerBatchSize,
		Concurrency:  a.cfg.WorkerConcurrency,
		StaleLockAge: a.cfg.QueueStaleLockAge,
	})
	a.movements.RegisterHandlers(w)
	return w
}

func (a *app) close() {
	if err := a.bus.Close(); err != nil {
		logger.Warn("Failed to close event bus", "error", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
