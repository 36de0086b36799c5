package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/resolve"
	"github.com/smartcompare/compare-cli/internal/retailer"
	"github.com/smartcompare/compare-cli/internal/store"
	anthropicpkg "github.com/smartcompare/compare-cli/pkg/anthropic"
	"github.com/smartcompare/compare-cli/pkg/fetch"
	"github.com/smartcompare/compare-cli/pkg/serper"
)

// env bundles the wired pipeline with the resources it owns.
type env struct {
	Pipeline *resolve.Pipeline
	Store    store.Store
}

func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "redis":
		return store.NewRedis(ctx, cfg.Store.RedisAddr, "", cfg.Store.RedisDB)
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initClassifier() (*retailer.Classifier, error) {
	if cfg.Retailer.TablePath == "" {
		return retailer.Default(), nil
	}
	return retailer.LoadYAML(cfg.Retailer.TablePath)
}

// initPipeline validates the config for the mode and wires every client.
func initPipeline(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	classifier, err := initClassifier()
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, eris.Wrap(err, "load retailer table")
	}

	searchClient := serper.NewClient(cfg.Serper.Key,
		serper.WithBaseURL(cfg.Serper.BaseURL),
		serper.WithRateLimit(cfg.Serper.RateRPS, cfg.Serper.RateBurst),
	)
	modelClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	fetcher := fetch.New()

	p := resolve.New(searchClient, modelClient, fetcher, classifier, st, cfg.Cache.TTLs())
	p.ModelName = cfg.Anthropic.Model
	p.MaxModelTokens = int64(cfg.Anthropic.MaxTokens)
	p.HighValueFloorBHD = cfg.Resolve.HighValueFloorBHD
	p.ResultsPerSearch = cfg.Resolve.ResultsPerSearch

	return &env{Pipeline: p, Store: st}, nil
}
