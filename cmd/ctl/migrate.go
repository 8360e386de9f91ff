package main

import (
	"github.com/Domenick1991/restobooking/internal/migrate"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	for _, sub := range []struct {
		use, short string
	}{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back the latest migration"},
		{"status", "Print the state of every migration"},
		{"version", "Print the current schema version"},
	} {
		command := sub.use
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return runMigrate(c, opts, command)
			},
		})
	}
	return cmd
}

func runMigrate(c *cobra.Command, opts *rootOptions, command string) error {
	cfg, _, err := opts.load()
	if err != nil {
		return err
	}
	db, err := migrate.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	return migrate.Run(c.Context(), db, command)
}
