package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.etcd.io/bbolt"

	"github.com/chrisnestrud/PlayPalace11/config"
	"github.com/chrisnestrud/PlayPalace11/profile"
	boltrepo "github.com/chrisnestrud/PlayPalace11/storage/bbolt"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configPath   string
	logLevel     string
	dataDir      string
	debugPackets bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "palace",
	Short: "PlayPalace command-line client",
	Long: `A terminal client for PlayPalace game servers.

Servers and login identities are kept in a local profile; passwords are
sealed with a per-profile master key. TLS servers without a publicly
trusted certificate are pinned on first use after you approve them.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&configPath, "config", "", "Path to the YAML config file (default $"+config.EnvVar+")")
	fs.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&dataDir, "data-dir", "", "Directory for the profile database and master key")
	fs.BoolVar(&debugPackets, "debug-packets", false, "Log every packet (passwords redacted) at debug level")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("data-dir") {
		c.DataDir = dataDir
	}
	if flags.Changed("debug-packets") {
		c.DebugPackets = debugPackets
		if debugPackets && !flags.Changed("log-level") {
			c.LogLevel = "debug"
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	l, err := c.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// openProfile opens the profile database, creating the data directory and
// master key on first use. The returned func closes the database.
func openProfile() (*profile.Store, func() error, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	key, err := profile.LoadOrCreateKey(cfg.KeyPath())
	if err != nil {
		return nil, nil, err
	}
	repo, err := boltrepo.NewRepositoryFromFile(cfg.ProfilePath(), &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open profile (is another palace running?): %w", err)
	}
	store, err := profile.NewStore(repo, key, profile.WithLogger(logger))
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return store, repo.Close, nil
}
