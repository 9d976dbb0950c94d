package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flit-data/flitpipe/internal/config"
	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/mlcache"
	"github.com/flit-data/flitpipe/internal/simtom"
	"github.com/flit-data/flitpipe/internal/warehouse"
)

// Context holds the configuration for a command.
type Context struct {
	context.Context

	Command *cobra.Command
	Config  *config.Config
	Quiet   bool
}

// NewContext loads configuration, builds a logger context and logs any
// configuration warnings.
func NewContext(cmd *cobra.Command, flags []commandLineFlag) (*Context, error) {
	ctx := cmd.Context()

	if err := bindFlags(cmd, flags); err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var loaderOpts []config.LoaderOption
	if cfgPath := viper.GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}

	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var opts []logger.Option
	if cfg.Debug || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.LogFormat))
	}
	ctx = logger.WithLogger(ctx, logger.NewLogger(opts...))

	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}

	return &Context{
		Context: ctx,
		Command: cmd,
		Config:  cfg,
		Quiet:   quiet,
	}, nil
}

// OpenWarehouse connects to the configured warehouse and ensures the
// schema exists.
func (c *Context) OpenWarehouse() (*warehouse.Client, error) {
	client, err := warehouse.Open(c, c.Config.Warehouse.DSN, c.Config.Warehouse.Schema)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureSchema(c); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// OpenCache connects to the ML prediction cache, loading the env file
// first when one is configured.
func (c *Context) OpenCache() (*mlcache.Client, error) {
	mlcache.LoadEnvFile(c, c.Config.Redis.EnvFile)
	url := c.Config.Redis.URL
	if env := os.Getenv("REDIS_URL"); env != "" {
		url = env
	}
	return mlcache.New(url, c.Config.Redis.TTL)
}

// StringParam retrieves a string parameter from the command line flags.
func (c *Context) StringParam(name string) (string, error) {
	val, err := c.Command.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to get flag %s: %w", name, err)
	}
	return val, nil
}

// IntParam retrieves a string flag and parses it as an integer.
func (c *Context) IntParam(name string) (int, error) {
	val, err := c.StringParam(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("flag %s must be an integer, got %q", name, val)
	}
	return n, nil
}

// Float64Param retrieves a string flag and parses it as a float.
func (c *Context) Float64Param(name string) (float64, error) {
	val, err := c.StringParam(name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("flag %s must be a number, got %q", name, val)
	}
	return f, nil
}

// Changed reports whether the flag was set on the command line.
func (c *Context) Changed(name string) bool {
	return c.Command.Flags().Changed(name)
}

// APIClient builds the simtom client from configuration.
func (c *Context) APIClient() *simtom.Client {
	cfg := c.Config.API
	return simtom.New(
		simtom.WithBaseURL(cfg.BaseURL),
		simtom.WithDataset(cfg.Dataset),
		simtom.WithTimeout(cfg.Timeout),
		simtom.WithMaxRetries(cfg.MaxRetries),
		simtom.WithRetryInterval(cfg.RetryInterval),
		simtom.WithRateLimitDelay(cfg.RateLimitDelay),
	)
}

// NewCommand wraps a cobra command with flag registration, context setup
// and uniform error handling.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(ctx *Context, args []string) error) *cobra.Command {
	initFlags(cmd, flags...)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, flags)
		if err != nil {
			fmt.Printf("Initialization error: %v\n", err)
			os.Exit(1)
		}
		if err := runFunc(ctx, args); err != nil {
			logger.Error(ctx.Context, "Command failed", "err", err)
			os.Exit(1)
		}
		return nil
	}

	return cmd
}

// genRunID creates a time-ordered UUID identifying one pipeline run in
// logs and progress reporting.
func genRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
