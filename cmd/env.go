package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/linkage"
	"github.com/sells-group/probate-link/internal/pipeline"
	"github.com/sells-group/probate-link/internal/portal"
	"github.com/sells-group/probate-link/internal/resilience"
	"github.com/sells-group/probate-link/internal/store"
)

// Portal names used for sessions and circuit breakers.
const (
	portalAssessor = "assessor"
	portalClerk    = "clerk"
	portalTaxRoll  = "taxroll"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "probate-link.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and applies pending migrations.
// Callers should defer st.Close().
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadTiers returns the configured tier file, or the built-in cascade.
func loadTiers() ([]linkage.TierSpec, error) {
	if cfg.Engine.TiersFile == "" {
		return linkage.DefaultTiers(), nil
	}
	tiers, err := linkage.LoadTiers(cfg.Engine.TiersFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded tiers", zap.String("file", cfg.Engine.TiersFile), zap.Int("tiers", len(tiers)))
	return tiers, nil
}

// assessorFactory opens one browser session per worker. Every session
// shares the assessor circuit breaker.
func assessorFactory(breakers *resilience.Breakers) pipeline.ProviderFactory {
	return func(ctx context.Context, worker int) (linkage.SearchProvider, func(), error) {
		session, err := portal.NewSession(ctx, fmt.Sprintf("%s-%d", portalAssessor, worker), cfg.Portal, breakers.Get(portalAssessor))
		if err != nil {
			return nil, nil, err
		}
		return portal.NewAssessor(session, cfg.Portal.AssessorURL), session.Close, nil
	}
}

// initRunner builds the resolution runner over st.
func initRunner(st store.Store, breakers *resilience.Breakers) (*pipeline.Runner, error) {
	if err := linkage.ValidateThresholds(cfg.Engine.ThresholdsConfig); err != nil {
		return nil, err
	}
	tiers, err := loadTiers()
	if err != nil {
		return nil, err
	}
	return pipeline.New(st, assessorFactory(breakers), tiers, cfg), nil
}
