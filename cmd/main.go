package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/config"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/database"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/logger"
	"github.com/kkkkikiki/infestor/internal/repository"
	"github.com/kkkkikiki/infestor/internal/service"
)

const (
	programName = "infestor"

	// exitFailure is what the shell sees for -1
	exitFailure = 255
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var globalFlags = struct {
	debug bool
}{}

type loggerKey struct{}

func loggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// newChainClient connects to the configured node
func newChainClient(cfg *config.Config, log *zap.Logger) (*chain.Client, error) {
	return chain.NewClient(chain.Config{
		NodeURL:       cfg.Infestor.NodeURL,
		ChainID:       cfg.Infestor.ChainID,
		AddressPrefix: cfg.Infestor.AddressPrefix,
		Timeout:       time.Duration(cfg.Infestor.RPCTimeout) * time.Second,
	}, log)
}

// newEnv builds the workflow environment for one CLI invocation. The store is
// only opened when withStore is set; the returned func closes it.
func newEnv(ctx context.Context, cfg *config.Config, log *zap.Logger, creator string, withStore bool) (*service.Env, func(), error) {
	if creator == "" {
		creator = cfg.Infestor.CreatorAccount
	}

	env := &service.Env{
		Deriver: keys.NewDeriver(cfg.Infestor.AddressPrefix),
		Creator: creator,
		ActiveKey: credentials.FromEnv(cfg.Infestor.ActiveKey,
			credentials.NewPrompt("Creator account's active key:")),
		Policy: service.IssuancePolicy{
			MinimumReputation: cfg.Infestor.MinimumReputation,
			OperatorWitness:   cfg.Infestor.OperatorWitness,
		},
		Logger: log,
	}

	client, err := newChainClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	env.Chain = client

	cleanup := func() {}
	if withStore {
		db, err := database.NewDB(ctx, &cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		env.Store = repository.NewGiftCodeRepository(db)
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}
	}

	return env, cleanup, nil
}

func requireCreator(env *service.Env) error {
	if env.Creator == "" {
		return errors.New("add a --creator <account> to the command or set INFESTOR_CREATOR_ACCOUNT")
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s)\n", programName, version, commit)
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Claim discounted accounts and hand them out with gift codes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log, err := logger.NewLogger(&cfg.App, globalFlags.debug)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		ctx := config.WithContext(cmd.Context(), cfg)
		cmd.SetContext(context.WithValue(ctx, loggerKey{}, log))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(claimAccountCommand())
	rootCmd.AddCommand(createClaimedAccountCommand())
	rootCmd.AddCommand(addGiftCodeCommand())
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}
