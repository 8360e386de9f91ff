package main

import (
	"fmt"

	"github.com/Domenick1991/restobooking/internal/bootstrap"
	"github.com/spf13/cobra"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var job string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the lifecycle sweeps once (no-show, offer-expiry, reminder)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.withServices(c.Context(), func(s *bootstrap.Services) error {
				if job == "" {
					service, err := s.SweepService()
					if err != nil {
						return err
					}
					return service.RunCycle(c.Context())
				}

				j, ok := s.Sweeps.Lookup(job)
				if !ok {
					return fmt.Errorf("unknown sweep %q", job)
				}
				if err := j.Run(c.Context()); err != nil {
					return fmt.Errorf("%s: %w", j.Name(), err)
				}
				fmt.Fprintf(c.OutOrStdout(), "%s: done\n", j.Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "run only this sweep, bypassing the cycle lock")
	return cmd
}
