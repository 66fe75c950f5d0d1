package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/BretMeraki/Forest7-15-sub001/internal/config"
	"github.com/BretMeraki/Forest7-15-sub001/internal/engine"
	"github.com/BretMeraki/Forest7-15-sub001/internal/evolve"
	"github.com/BretMeraki/Forest7-15-sub001/internal/forest"
	"github.com/BretMeraki/Forest7-15-sub001/internal/gateway"
	"github.com/BretMeraki/Forest7-15-sub001/internal/store"
	"github.com/BretMeraki/Forest7-15-sub001/internal/vector"
)

// openService builds the fully wired service over the workspace database
// in .forest/. The returned cleanup closes the database.
func openService(ctx context.Context) (*forest.Service, config.Config, func(), error) {
	noop := func() {}
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, config.Config{}, noop, err
	}
	forestDir := filepath.Join(repoRoot, ".forest")
	if err := os.MkdirAll(forestDir, 0o755); err != nil {
		return nil, config.Config{}, noop, err
	}

	cfgPath := viper.GetString("config")
	if cfgPath == "" {
		cfgPath = filepath.Join(".forest", "config.json")
	}
	if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(repoRoot, cfgPath)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, config.Config{}, noop, err
	}

	db, err := store.Open(filepath.Join(forestDir, "forest.db"))
	if err != nil {
		return nil, config.Config{}, noop, err
	}
	cleanup := func() { _ = db.Close() }

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, config.Config{}, noop, err
	}

	st := store.NewSQLStore(db)
	eng := engine.New(gen, log.Logger)
	tracker := evolve.NewTracker(st, eng, evolve.Options{
		Cooldown:   cfg.Evolution.Cooldown,
		MinSamples: cfg.Evolution.MinSamples,
	}, log.Logger)
	svc := forest.New(st, eng, tracker, vector.NewSQLIndex(db), log.Logger)
	return svc, cfg, cleanup, nil
}

// newGenerator picks the generation backend. Without an API key the
// engine still works; every level comes from the fallback skeletons.
func newGenerator(ctx context.Context, cfg config.Config) (gateway.Generator, error) {
	apiKey := os.Getenv(cfg.Generation.APIKeyEnv)
	if apiKey == "" {
		log.Warn().
			Str("env", cfg.Generation.APIKeyEnv).
			Msg("no API key set; tree content will use fallback skeletons")
		return gateway.Unavailable{Reason: "api key not set"}, nil
	}
	return gateway.NewGeminiGenerator(ctx, gateway.GeminiOptions{
		APIKey:  apiKey,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	}, log.Logger)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(raw))
	return nil
}
