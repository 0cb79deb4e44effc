package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/epartner/engine/internal/config"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/persistence"
	"github.com/epartner/engine/internal/provider"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "partner",
	Short: "Engineering partner workflow engine",
	Long: `partner drives multi-stage generation workflows over an engineering project:
- run: generate a phase's documents in dependency order
- change: propagate a change request through impacted documents
- export: produce a tool-specific artifact from phase content
- discover: iteratively search for risks or resources`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgPath != "" {
			cfg, err = config.Load("", cfgPath)
		} else {
			cfg, err = config.LoadDefault()
		}
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a config file (overrides conventional locations)")
	registerCommands()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPhasesCmd())
	rootCmd.AddCommand(newChangeCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDiscoverCmd())
}

// openStore opens the configured SQLite database.
func openStore(ctx context.Context) (*persistence.SQLiteStore, error) {
	return persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
}

// newClient assembles the invocation layer from config. The API key is read
// from the environment here, at the binary edge, and injected downward.
func newClient(bus *events.Bus) *provider.Client {
	models := provider.ModelCatalog{
		Fast:    cfg.Provider.Models.Fast,
		Quality: cfg.Provider.Models.Quality,
	}

	var backend provider.Provider
	if cfg.Provider.Type == "command" {
		backend = provider.NewCLIProvider(provider.CLIConfig{
			Command: cfg.Provider.Command,
			Args:    cfg.Provider.Args,
			Models:  models,
		})
	} else {
		backend = provider.NewHTTPProvider(provider.HTTPConfig{
			Endpoint: cfg.Provider.Endpoint,
			APIKey:   os.Getenv(cfg.Provider.APIKeyEnv),
			Timeout:  time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
			Models:   models,
		}, nil)
	}

	breakers := provider.NewBreakerRegistry(func(name string, from, to gobreaker.State) {
		bus.Notify(fmt.Sprintf("Circuit %s: %s -> %s", name, from, to), events.LevelWarning)
	})

	return provider.NewClient(backend, provider.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		ShortBackoff: time.Duration(cfg.Retry.ShortBackoffSeconds) * time.Second,
		LongBackoff:  time.Duration(cfg.Retry.LongBackoffSeconds) * time.Second,
	}, breakers)
}
