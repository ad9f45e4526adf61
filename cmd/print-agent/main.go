package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/print-relay/internal/agent"
	"github.com/cuongbtq/print-relay/internal/config"
	"github.com/cuongbtq/print-relay/internal/identity"
	"github.com/cuongbtq/print-relay/shared/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "print-agent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	defaultConfigPath := os.Getenv("PRINT_AGENT_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/print-agent/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "print-agent",
		Short:        "Executes print jobs relayed by the print server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.AddCommand(
		newRunCmd(),
		newTokenCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the print server and execute ready jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.ValidateAgentConfig(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runAgent(cmd.Context(), cfg)
		},
	}
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting print agent",
		slog.String("server", cfg.Agent.ServerURL),
		slog.String("executor", cfg.Agent.Executor),
	)

	executor, err := initExecutor(&cfg.Agent, appLogger.Component("executor"))
	if err != nil {
		return err
	}

	// must outlast the server's ping interval
	dialer, err := agent.NewWSDialer(cfg.Agent.ServerURL, cfg.Push.PongWait)
	if err != nil {
		return fmt.Errorf("failed to build push dialer: %w", err)
	}

	a := agent.New(agent.Config{
		Token:              cfg.Agent.Token,
		PollInterval:       cfg.Agent.PollInterval,
		SafetyPollInterval: cfg.Agent.SafetyPollInterval,
		ReconnectMin:       cfg.Agent.ReconnectMin,
		ReconnectMax:       cfg.Agent.ReconnectMax,
		ReportTimeout:      cfg.Agent.RequestTimeout,
	},
		agent.NewHTTPClient(cfg.Agent.ServerURL, cfg.Agent.Token, cfg.Agent.RequestTimeout),
		dialer,
		executor,
		appLogger.Component("agent"),
	)

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	<-ctx.Done()
	appLogger.Info("Shutdown signal received")
	a.Stop()

	return nil
}

func initExecutor(cfg *config.AgentConfig, logger *slog.Logger) (agent.Executor, error) {
	switch cfg.Executor {
	case "command":
		return agent.NewCommandExecutor(cfg.Command, cfg.ExecTimeout, logger)
	default:
		return agent.NewLogExecutor(logger), nil
	}
}

func newTokenCmd() *cobra.Command {
	var (
		id   int64
		name string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a credential for an identity using the server's auth settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id <= 0 {
				return fmt.Errorf("--id must be a positive identity id")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(cfg.Auth.JWTSecret) == 0 {
				return fmt.Errorf("auth jwt_secret is required to issue tokens")
			}

			token, err := identity.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).Issue(id, name)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Identity id the token authenticates")
	cmd.Flags().StringVar(&name, "name", "", "Display name embedded in the token")
	return cmd
}
