package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/internal/manager"
	"github.com/tablelink/tablelink/internal/service"
	"github.com/tablelink/tablelink/pkg/config"
	"github.com/tablelink/tablelink/pkg/logger"
	"github.com/tablelink/tablelink/pkg/observability"
	"github.com/tablelink/tablelink/pkg/secret"
	"github.com/tablelink/tablelink/pkg/store"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "tablelink",
		Short: "TableLink - external database connection manager",
		Long: `TableLink manages logical connections to external MySQL databases:
register credentials, inspect remote schema, and bulk-import table structure
into the host's metadata store with bounded concurrency.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("TableLink v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the connection manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	root.AddCommand(serveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(configFile)
		},
	}
	listCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	root.AddCommand(listCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration from defaults plus an
// optional YAML file.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildManager wires the manager and its collaborators from configuration.
// Absent store endpoints fall back to in-memory stores for standalone runs.
func buildManager(ctx context.Context, cfg *config.Config) (*manager.Manager, store.CredentialStore, error) {
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return nil, nil, err
	}
	log := logger.Get()

	if cfg.Observability.EnableTracing {
		if err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "tablelink",
			ServiceVersion: version,
			Environment:    os.Getenv("ENVIRONMENT"),
			SamplingRate:   0.1,
		}); err != nil {
			return nil, nil, err
		}
	}

	cipher, err := secret.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	var credentials store.CredentialStore
	if cfg.Store.PostgresDSN != "" {
		credentials, err = store.NewPostgresCredentialStore(ctx, cfg.Store.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
	} else {
		log.Warn("no credential store configured, using in-memory store")
		credentials = store.NewMemoryCredentialStore()
	}

	var collections store.CollectionStore
	if cfg.Store.MongoURI != "" {
		collections, err = store.NewMongoCollectionStore(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, log)
		if err != nil {
			return nil, nil, err
		}
	} else {
		log.Warn("no collection store configured, using in-memory store")
		collections = store.NewMemoryCollectionStore()
	}

	driver := manager.NewMySQLDriver(manager.MySQLDriverConfig{
		ConnectTimeout: cfg.Pool.ConnectTimeout,
		EnableTLS:      cfg.Security.EnableTLS,
		TLSSkipVerify:  cfg.Security.TLSSkipVerify,
	}, log)

	mgr := manager.New(cfg, credentials, collections, driver, cipher, log)
	return mgr, credentials, nil
}

func runServe(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	mgr, credentials, err := buildManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := mgr.Restore(ctx); err != nil {
		return err
	}
	mgr.StartReaper()

	svc := service.New(mgr, credentials)
	logger.Info("tablelink running",
		zap.String("version", version),
		zap.String("health", svc.Health(ctx).Status))

	// Drain on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("termination signal received", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	return observability.Shutdown(shutdownCtx)
}

func runList(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mgr, _, err := buildManager(ctx, cfg)
	if err != nil {
		return err
	}
	if err := mgr.Restore(ctx); err != nil {
		return err
	}

	summaries := mgr.List()
	if len(summaries) == 0 {
		fmt.Println("No connections registered.")
		return nil
	}

	fmt.Println("Registered connections:")
	for _, summary := range summaries {
		fmt.Printf("  %s  %s  %s:%d/%s  [%s]\n",
			summary.ID, summary.Name, summary.Host, summary.Port,
			summary.Database, summary.Status)
	}
	return nil
}
