package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	app "github.com/maximilianalessandronmartin/taskquest"
	"github.com/maximilianalessandronmartin/taskquest/internal/config"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

var (
	configFile string
	serveHost  string
	servePort  int
)

var rootCmd = &cobra.Command{
	Use:   "taskquest",
	Short: "TaskQuest Pomodoro timer service",
	Long: `TaskQuest runs the per-task Pomodoro timers: the HTTP API, the
realtime WebSocket push channel and the background sweep that completes
expired timers. Without a subcommand it serves.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and timer sweeper",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single timer sweep against the configured store",
	RunE:  runSweep,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"TOML configuration file (overrides CONFIG_FILE)")
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveHost, "host", "",
			"Host to listen on (overrides config)")
		cmd.Flags().IntVar(&servePort, "port", 0,
			"Port to listen on (overrides config)")
	}
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

func main() {
	rootCmd.Version = app.Version
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.APIHost = serveHost
	}
	if servePort > 0 {
		cfg.APIPort = servePort
	}

	s := newTaskQuest(cfg)
	s.setupLogging()
	return s.run()
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := newTaskQuest(cfg)
	s.setupLogging()
	res, err := s.sweepOnce(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"active=%d changed=%d failed=%d\n",
		res.Active, res.Changed, res.Failed)
	return err
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
