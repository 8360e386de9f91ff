package main

import (
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/bootstrap"
	"github.com/spf13/cobra"
)

func newSlotsCmd(opts *rootOptions) *cobra.Command {
	var (
		date      string
		partySize int
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List bookable start times for a day and party size",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.withServices(c.Context(), func(s *bootstrap.Services) error {
				day, err := time.ParseInLocation("2006-01-02", date, s.Location)
				if err != nil {
					return fmt.Errorf("invalid --date (want YYYY-MM-DD)")
				}
				slots, err := s.Booking.AlternativeSlots(c.Context(), day, partySize)
				if err != nil {
					return err
				}
				if len(slots) == 0 {
					fmt.Fprintln(c.OutOrStdout(), "no bookable slots")
					return nil
				}
				for _, slot := range slots {
					fmt.Fprintln(c.OutOrStdout(), slot.In(s.Location).Format("15:04"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", time.Now().Format("2006-01-02"), "day to list (YYYY-MM-DD)")
	cmd.Flags().IntVar(&partySize, "party-size", 2, "party size")
	return cmd
}
