// Package main provides the CLI for the DBDeck management API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dbdeck-labs/dbdeck/internal/analyze"
	"github.com/dbdeck-labs/dbdeck/internal/config"
	"github.com/dbdeck-labs/dbdeck/internal/gateway"
	"github.com/dbdeck-labs/dbdeck/internal/inspector"
	"github.com/dbdeck-labs/dbdeck/internal/llm"
	"github.com/dbdeck-labs/dbdeck/internal/metrics"
	"github.com/dbdeck-labs/dbdeck/internal/probe"
	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/internal/server"
)

var version = "dev"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
}

var (
	// Global flags
	configFile string
	storePath  string
	port       int
	verbose    bool
)

func main() {
	commands := map[string]*Command{
		"serve": {
			Name:        "serve",
			Description: "Start the management API server",
			Run:         serveCmd,
		},
		"migrate": {
			Name:        "migrate",
			Description: "Run registry schema migrations and exit",
			Run:         migrateCmd,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Run:         versionCmd,
		},
	}

	if len(os.Args) < 2 {
		printUsage(commands)
		os.Exit(0)
	}

	cmdName := os.Args[1]

	if cmdName == "help" || cmdName == "-h" || cmdName == "--help" {
		printUsage(commands)
		os.Exit(0)
	}

	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage(commands)
		os.Exit(1)
	}

	if err := cmd.Run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(commands map[string]*Command) {
	fmt.Println("DBDeck - Database Instance Management API")
	fmt.Println()
	fmt.Println("Usage: dbdeck <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range []string{"serve", "migrate", "version"} {
		if c, ok := commands[cmd]; ok {
			fmt.Printf("  %-12s %s\n", c.Name, c.Description)
		}
	}
	fmt.Println()
	fmt.Println("Run 'dbdeck <command> -h' for help on a specific command.")
}

func setupFlags(fs *flag.FlagSet) {
	fs.StringVar(&configFile, "config", "", "Path to config file (default: dbdeck.yaml)")
	fs.StringVar(&storePath, "store", "", "Path to registry database (overrides config)")
	fs.IntVar(&port, "port", 0, "HTTP listen port (overrides config)")
	fs.BoolVar(&verbose, "v", false, "Verbose output")
}

// loadConfig loads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens the registry database and runs migrations.
func openStore(cfg *config.Config) (*registry.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "." && dir != "" && cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	store := registry.NewSQLiteStore()
	if err := store.Open(cfg.Store.Path); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// serveCmd starts the API server.
func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	setupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	prom, err := metrics.New(cfg.Prometheus.NormalizedBaseURL(), cfg.Prometheus.Timeout(), logger)
	if err != nil {
		return err
	}

	model := llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout(),
		Enabled: cfg.LLM.Enabled,
	}, logger)
	if !model.Enabled() {
		logger.Warn("llm analysis disabled, /sql/analyze will degrade to null results")
	}

	srv := server.NewServer(server.Config{
		Instances: registry.NewService(store, probe.New(logger), logger),
		Schema:    inspector.New(store, logger),
		Executor:  gateway.New(store, logger),
		Analyzer:  analyze.New(store, model, logger),
		Metrics:   metrics.NewSummaryService(store, prom, logger),
		Health:    prom,
		Port:      cfg.Server.Port,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}

// migrateCmd runs schema migrations without starting the server.
func migrateCmd(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	setupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fmt.Printf("Registry at %s is up to date\n", cfg.Store.Path)
	return nil
}

// versionCmd shows version information.
func versionCmd(_ []string) error {
	fmt.Printf("dbdeck %s\n", version)
	return nil
}
