package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rpattn/rdrstore/internal/config"
	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/db"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/entities"
	"github.com/rpattn/rdrstore/internal/logger"
	"github.com/rpattn/rdrstore/internal/metrics"
	"github.com/rpattn/rdrstore/internal/store"
	"github.com/rpattn/rdrstore/internal/store/memory"
	"github.com/rpattn/rdrstore/internal/store/postgres"
	"github.com/rpattn/rdrstore/internal/store/sqlite"
)

type schemaStore interface {
	store.Store
	EnsureSchema(ctx context.Context, entities ...*domain.EntityDescriptor) error
}

// app wires configuration, storage and one Dao per registered entity.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	registry *entities.Registry
	store    schemaStore
	metrics  *metrics.Metrics
	close    func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	cfg.Log.Output = os.Stderr
	log := logger.New(cfg.Log)

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: entities.Default(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		close:    func() {},
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		conn, err := db.NewConnection(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.store = postgres.NewStore(conn)
		a.close = conn.Close
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store = s
		a.close = func() { _ = s.Close() }
	default:
		a.store = memory.NewStore()
	}
	log.Debug().Str("backend", cfg.Storage.Backend).Msg("Storage opened")
	return a, nil
}

func (a *app) dao(entity string) (*dao.Dao, error) {
	e, err := a.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	opts := append(a.cfg.DAO.Options(), dao.WithLogger(a.log), dao.WithMetrics(a.metrics))
	return dao.New(e, a.store, opts...)
}

// parseParams turns "field=value" arguments into search parameters.
func parseParams(args []string) (url.Values, error) {
	params := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		params.Add(key, value)
	}
	return params, nil
}
