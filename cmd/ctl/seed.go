package main

import (
	"fmt"

	"github.com/Domenick1991/restobooking/internal/bootstrap"
	"github.com/spf13/cobra"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the tables and weekly hours from the restaurant config",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.withServices(c.Context(), func(s *bootstrap.Services) error {
				rc := s.Config.Restaurant
				if err := bootstrap.Seed(c.Context(), s.Store, rc); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "seeded %d tables and %d weekdays\n", len(rc.Tables), len(rc.Hours))
				return nil
			})
		},
	}
}
