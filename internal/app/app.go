// Package app assembles the ledger from configuration for the server and
// the command line tool.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/brokerage-ledger/internal/brokerage"
	"github.com/sheikh-saqib/brokerage-ledger/internal/config"
	dirmemory "github.com/sheikh-saqib/brokerage-ledger/internal/directory/memory"
	dirpostgres "github.com/sheikh-saqib/brokerage-ledger/internal/directory/postgres"
	"github.com/sheikh-saqib/brokerage-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/brokerage-ledger/internal/events/logging"
	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/brokerage-ledger/internal/storage/postgres"
	"github.com/sirupsen/logrus"
)

type App struct {
	Service *brokerage.Service
	Ledger  *ledger.Ledger

	db      *sql.DB
	closers []func() error
}

// New wires storage, the directory, the event publisher and the service
// described by cfg.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{}

	var (
		store     interfaces.LedgerStore
		directory interfaces.AccountDirectory
		market    interfaces.MarketData
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		store = postgres.NewPostgresLedgerStore(db, postgres.WithLockTimeout(cfg.Ledger.LockTimeout))
		dir := dirpostgres.NewDirectory(db)
		directory, market = dir, dir
	default:
		store = memory.NewMemoryLedgerStore()
		catalog := dirmemory.NewCatalog()
		if cfg.Directory.SeedFile != "" {
			var err error
			if catalog, err = dirmemory.LoadSeed(cfg.Directory.SeedFile); err != nil {
				return nil, err
			}
		}
		directory, market = catalog, catalog
	}

	l := ledger.NewLedger(store, directory,
		ledger.WithLogger(log),
		ledger.WithLockTimeout(cfg.Ledger.LockTimeout),
		ledger.WithWriteVerification(cfg.Ledger.Verify()),
	)

	var publisher interfaces.EventPublisher = logging.NewPublisher(log)
	if cfg.Kafka.Enabled {
		p := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		a.closers = append(a.closers, p.Close)
		publisher = p
	}

	a.Ledger = l
	a.Service = brokerage.NewService(l, directory, market,
		brokerage.WithLogger(log),
		brokerage.WithPublisher(publisher),
	)
	log.WithFields(logrus.Fields{
		"storage":       cfg.Storage.Driver,
		"kafka":         cfg.Kafka.Enabled,
		"verify_writes": cfg.Ledger.Verify(),
	}).Info("ledger ready")
	return a, nil
}

// Migrate creates the postgres schema. It is a no-op for the memory driver.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if err := dirpostgres.NewDirectory(a.db).Migrate(ctx); err != nil {
		return err
	}
	return postgres.NewPostgresLedgerStore(a.db).Migrate(ctx)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}
