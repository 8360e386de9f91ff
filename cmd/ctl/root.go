package main

import (
	"context"
	"os"

	"github.com/Domenick1991/restobooking/config"
	"github.com/Domenick1991/restobooking/internal/bootstrap"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "restoctl",
		Short:         "Administer the restaurant booking core: schema, seed data, sweeps and slots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newSeedCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newSlotsCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "restoctl",
		Level:       logger.ParseLevel(o.logLevel),
		Format:      "console",
		Output:      os.Stderr,
	})
	return cfg, logg, nil
}

// withServices builds the service graph for one command and closes it after.
func (o *rootOptions) withServices(ctx context.Context, fn func(*bootstrap.Services) error) (err error) {
	cfg, logg, err := o.load()
	if err != nil {
		return err
	}
	services, err := bootstrap.New(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := services.Close(ctx); err == nil {
			err = closeErr
		}
	}()
	return fn(services)
}
