package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goran-ethernal/ChainReactor/internal/cache"
	"github.com/goran-ethernal/ChainReactor/internal/classifier"
	"github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/db"
	"github.com/goran-ethernal/ChainReactor/internal/invalidation"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/internal/migrations"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/pipeline"
	"github.com/goran-ethernal/ChainReactor/internal/reorg"
	"github.com/goran-ethernal/ChainReactor/internal/routing"
	"github.com/goran-ethernal/ChainReactor/internal/store"
	"github.com/goran-ethernal/ChainReactor/pkg/api"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         ChainReactor v%s               ║
║   Blockchain Event Reaction Pipeline      ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reactor",
	Short: "ChainReactor - Blockchain event reaction pipeline",
	Long: `ChainReactor turns confirmed blockchain event batches into application
side effects. It classifies webhook deliveries into domain events, routes them
through a runtime rule table, invalidates read caches, dispatches user
notifications, and compensates all of it when the chain reorganizes.`,
	Version: version,
	RunE:    runReactor,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List built-in cache invalidation rules",
	Long:  `List the invalidation rules the reactor ships with, one per domain event kind.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Built-in invalidation rules:")
		for _, rule := range invalidation.NewRuleSet().Snapshot() {
			templates := make([]string, 0, len(rule.Keys)+len(rule.Patterns))
			templates = append(templates, rule.Keys...)
			templates = append(templates, rule.Patterns...)
			fmt.Printf("  - %-26s %s\n", rule.Kind, strings.Join(templates, ", "))
		}
	},
}

var schemaCmd = &cobra.Command{
	Use:   "config-schema",
	Short: "Print the configuration file JSON schema",
	Long: `Print a JSON schema describing the reactor configuration file. The schema
covers every section (ingest, classifier, routing, cache, invalidator,
dispatcher, reorg, db, api, logging, metrics) and can be fed to editors and
validation tooling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := jsonschema.Reflect(&config.Config{})
		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config schema: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runReactor(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	// Load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	// Initialize logger
	log := logger.NewComponentLoggerFromConfig(common.ComponentIngest, cfg.Logging)

	// Initialize metrics server if enabled
	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	// Run database migrations
	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize database
	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	// Initialize maintenance coordinator
	dbMaintenance := db.NewMaintenanceCoordinator(
		cfg.DB.Path,
		database,
		cfg.DB.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging),
	)
	if err := dbMaintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := dbMaintenance.Stop(); err != nil {
			log.Warnf("Failed to stop database maintenance: %v", err)
		}
	}()

	// Initialize stores
	journalLog := logger.NewComponentLoggerFromConfig(common.ComponentJournal, cfg.Logging)
	models := store.NewModels(database, journalLog)
	journal := store.NewJournal(database, journalLog)
	projection := store.NewProjection(database, models, journal, journalLog)
	history := store.NewNotificationLog(database, journalLog)
	ledger := store.NewBatchLedger(database, journalLog)

	// Initialize cache store
	cacheStore, err := cache.NewStoreFromConfig(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}
	defer func() {
		if err := cacheStore.Close(); err != nil {
			log.Warnf("Failed to close cache store: %v", err)
		}
	}()
	log.Infof("Cache store ready: %s (backend: %s)", cacheStore.Name(), cfg.Cache.Backend)

	// Seed invalidation rules: built-ins plus configured overrides
	ruleSet, err := invalidation.NewRuleSetFromConfig(cfg.Invalidator.Rules)
	if err != nil {
		return fmt.Errorf("failed to load invalidation rules: %w", err)
	}

	// Initialize cache invalidator
	invalidator := invalidation.New(
		cfg.Invalidator,
		cfg.Cache.DefaultTTL.Duration,
		ruleSet,
		logger.NewComponentLoggerFromConfig(common.ComponentCacheInvalidator, cfg.Logging),
	)
	invalidator.RegisterStore(cacheStore)
	defer invalidator.Close()

	// Rewarm recomputes badge records from the projection store. Keys
	// without a projected record return an error so nothing is written back.
	invalidator.SetRewarmFunc(func(ctx context.Context, key string) ([]byte, error) {
		parts := strings.Split(key, ":")
		if len(parts) < 2 || parts[0] != "badge" || parts[1] == "" {
			return nil, fmt.Errorf("key %q has no rewarm source", key)
		}
		model, err := models.Get(ctx, pipeline.BadgeCollection, parts[1])
		if err != nil {
			return nil, err
		}
		if model == nil {
			return nil, fmt.Errorf("no projected record for key %q", key)
		}
		return model.Data, nil
	})

	// Initialize notification dispatcher and websocket hub
	dispatcherLog := logger.NewComponentLoggerFromConfig(common.ComponentDispatcher, cfg.Logging)
	dispatcher := notify.New(cfg.Dispatcher, dispatcherLog)
	defer dispatcher.Destroy()
	hub := notify.NewHub(dispatcherLog)
	defer hub.Close()

	// Register delivery channels from configuration
	for _, chCfg := range cfg.Dispatcher.Channels {
		var ch notify.Channel
		if chCfg.Type == "websocket" {
			// Websocket channels deliver through the hub the API exposes
			ch = notify.NewWebSocketChannel(chCfg.Name, hub)
		} else {
			ch, err = notify.NewChannelFromConfig(chCfg, dispatcherLog)
			if err != nil {
				return fmt.Errorf("failed to create channel %s: %w", chCfg.Name, err)
			}
		}
		if err := dispatcher.RegisterChannel(ch); err != nil {
			return fmt.Errorf("failed to register channel %s: %w", chCfg.Name, err)
		}
		log.Infof("✓ Registered delivery channel: %s (type: %s)", chCfg.Name, chCfg.Type)
	}
	if len(cfg.Dispatcher.Channels) == 0 {
		if err := dispatcher.RegisterChannel(notify.NewInAppChannel("inapp", 0)); err != nil {
			return fmt.Errorf("failed to register in-app channel: %w", err)
		}
		log.Info("No delivery channels configured, using in-app delivery only")
	}
	dispatcher.SetHistorySink(history)

	// Initialize reorg coordinator
	coordinator := reorg.NewCoordinator(
		journal,
		models,
		invalidator,
		dbMaintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentReorgCoordinator, cfg.Logging),
	)
	coordinator.SetAnnouncer(hub)
	coordinator.SetRecorder(dispatcher)

	// Initialize classifier and routing table
	cls := classifier.New(cfg.Classifier, logger.NewComponentLoggerFromConfig(common.ComponentClassifier, cfg.Logging))
	table := routing.New(cfg.Routing, logger.NewComponentLoggerFromConfig(common.ComponentRoutingTable, cfg.Logging))

	// Install the reaction handlers. Each gets its own match-all bootstrap
	// rule; the API can narrow, disable or extend the table at runtime.
	handlers := map[string]routing.Handler{
		"invalidation": pipeline.InvalidationHandler(invalidator),
		"projection":   pipeline.ProjectionHandler(projection, log),
		"notification": pipeline.NotificationHandler(dispatcher, notify.DeliveryAll),
	}
	for _, name := range []string{"invalidation", "projection", "notification"} {
		ruleID, err := table.Register(name, routing.Filter{})
		if err != nil {
			return fmt.Errorf("failed to register bootstrap rule %s: %w", name, err)
		}
		table.AddHandler(ruleID, handlers[name])
		log.Infof("✓ Registered reaction rule: %s", name)
	}

	// Initialize journal janitor
	janitor := store.NewJanitor(journal, ledger, cfg.Reorg,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging))
	janitor.Start(ctx)
	defer janitor.Stop()

	// Initialize reactor
	reactor := pipeline.New(cfg.Ingest, cls, table, coordinator, ledger,
		logger.NewComponentLoggerFromConfig(common.ComponentIngest, cfg.Logging))
	reactor.Start(ctx)

	// Start API server if enabled
	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(
			cfg.API,
			cfg.Ingest,
			api.Deps{
				Reactor:      reactor,
				Rules:        table,
				Invalidator:  invalidator,
				Dispatcher:   dispatcher,
				Coordinator:  coordinator,
				Journal:      journal,
				History:      history,
				Hub:          hub,
				Caches:       []cache.Store{cacheStore},
				RuleHandlers: handlers,
			},
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging),
		)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Info("ChainReactor started")

	<-ctx.Done()

	// Stop accepting batches first, then drain pending notifications so the
	// deferred teardown destroys an empty dispatcher.
	reactor.Stop()
	if flushed := dispatcher.Flush(context.Background()); flushed > 0 {
		log.Infof("Flushed %d pending notifications", flushed)
	}

	log.Info("ChainReactor stopped successfully")
	return nil
}
