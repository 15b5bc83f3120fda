// Matchd is the opportunity matching daemon.
//
// It loads a set of requester profiles, embeds them, and runs a periodic
// matching loop per profile against the opportunity vector corpus, emitting
// alerts for qualifying matches.
//
// Usage:
//
//	# Run the matching daemon
//	matchd --config matchd.yaml --profiles profiles.json
//
//	# Index opportunities into the corpus, then exit
//	matchd index --config matchd.yaml opportunities.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bidscoutlabs/matchd/internal/backend"
	"github.com/bidscoutlabs/matchd/internal/config"
	"github.com/bidscoutlabs/matchd/internal/embeddings"
	"github.com/bidscoutlabs/matchd/internal/logging"
	"github.com/bidscoutlabs/matchd/internal/matching"
	"github.com/bidscoutlabs/matchd/internal/responsecache"
)

// Version information (set via ldflags during build)
var version = "dev"

var (
	configPath   string
	profilesPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "matchd",
	Short: "Opportunity matching and alerting daemon",
	Long: `matchd matches contract opportunities against requester profiles.

It embeds each profile, periodically queries the opportunity vector corpus,
scores candidates on NAICS, set-aside, location, capability, recency and
value signals blended with vector similarity, and emits deduplicated alerts
for qualifying matches.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

var indexCmd = &cobra.Command{
	Use:   "index [file]",
	Short: "Index opportunities into the vector corpus",
	Long: `Index opportunities from a JSON file (an array of opportunity
objects) into the corpus collection, then exit.

Examples:

  matchd index opportunities.json
  matchd index --config matchd.yaml opportunities.json`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.Flags().StringVar(&profilesPath, "profiles", "", "path to profiles file (JSON array)")
	rootCmd.AddCommand(indexCmd)
}

// app holds the wired service graph shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	selector *backend.Selector
	engine   *matching.Engine
}

func (a *app) close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.selector != nil {
		_ = a.selector.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// buildApp wires config, logging, backends, the embedding gateway, the
// response cache, and the matching engine.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.selector = backend.NewSelector(cfg, logger)

	store, _, err := a.selector.Vector(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("resolving vector backend: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:           cfg.Embeddings.BaseURL,
		APIKey:            cfg.Embeddings.APIKey.Value(),
		Model:             cfg.Embeddings.Model,
		Dimension:         cfg.Embeddings.Dimension,
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initializing embedding service: %w", err)
	}

	kv, _ := a.selector.Cache(ctx)
	responses := responsecache.New(kv, responsecache.Config{
		ChatTTL:      cfg.ResponseCache.ChatTTL.Duration(),
		SearchTTL:    cfg.ResponseCache.SearchTTL.Duration(),
		EmbeddingTTL: cfg.ResponseCache.EmbeddingTTL.Duration(),
	})

	a.engine = matching.NewEngine(matching.Config{
		MinMatchScore:         cfg.Matching.MinMatchScore,
		CheckInterval:         cfg.Matching.CheckInterval.Duration(),
		MaxAlertsPerProfile:   cfg.Matching.MaxAlertsPerProfile,
		MaxCandidates:         cfg.Matching.MaxCandidates,
		OpportunityCollection: cfg.Matching.OpportunityCollection,
		ProfileCollection:     cfg.Matching.ProfileCollection,
	}, store, embedder, logger,
		matching.WithResponseCache(responses),
	)
	return a, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	profiles, err := loadProfiles(profilesPath)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		a.logger.Warn("no profiles to match; pass --profiles")
	}

	for _, profile := range profiles {
		if err := a.engine.StartMatching(ctx, profile); err != nil {
			a.logger.Error("failed to start matching",
				zap.String("profile_id", profile.ID), zap.Error(err))
		}
	}

	a.logger.Info("matchd running",
		zap.Int("profiles", len(a.engine.Running())),
		zap.Duration("check_interval", a.cfg.Matching.CheckInterval.Duration()),
	)

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var opportunities []matching.Opportunity
	if err := json.Unmarshal(data, &opportunities); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	indexed := 0
	for _, opp := range opportunities {
		if err := a.engine.IndexOpportunity(ctx, opp); err != nil {
			a.logger.Error("failed to index opportunity",
				zap.String("opportunity_id", opp.ID), zap.Error(err))
			continue
		}
		indexed++
	}

	a.logger.Info("indexing complete",
		zap.Int("indexed", indexed),
		zap.Int("total", len(opportunities)),
	)
	if indexed < len(opportunities) {
		return fmt.Errorf("indexed %d of %d opportunities", indexed, len(opportunities))
	}
	return nil
}

func loadProfiles(path string) ([]matching.Profile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var profiles []matching.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return profiles, nil
}
