package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loadline/loadline/internal/dashboard"
	"github.com/loadline/loadline/internal/negotiation"
)

func newCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Call record commands",
	}

	cmd.AddCommand(newCallsListCmd())
	cmd.AddCommand(newCallsShowCmd())
	return cmd
}

func newCallsListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent call records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCallsList(cmd, configPath, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of calls to show")
	return cmd
}

func runCallsList(cmd *cobra.Command, configPath string, limit int) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	recs, err := dashboard.RecentCalls(gormDB, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No calls recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CALL\tCARRIER\tOUTCOME\tLOAD\tRATE\tROUNDS\tENDED")
	for _, r := range recs {
		r1 := "-"
		if r.Outcome == "booked" {
			r1 = "$" + r.FinalRateCents.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.CallID,
			r.CarrierName,
			r.Outcome,
			r.SelectedLoadID,
			r1,
			r.NegotiationRounds,
			r.EndedAt.Format("Jan 2 15:04"),
		)
	}
	return w.Flush()
}

func newCallsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <call-id>",
		Short: "Show one call record, including the negotiation audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCallsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	return cmd
}

func runCallsShow(cmd *cobra.Command, configPath, callID string) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	rec, err := dashboard.CallDetail(gormDB, callID)
	if err != nil {
		return fmt.Errorf("call %s not found", callID)
	}

	fmt.Fprintf(out, "Call:        %s\n", rec.CallID)
	fmt.Fprintf(out, "Carrier:     %s (MC %s, %s)\n", rec.CarrierName, rec.AuthorityID, rec.CarrierStatus)
	fmt.Fprintf(out, "Outcome:     %s (final state %s)\n", rec.Outcome, rec.FinalState)
	if rec.EquipmentType != "" {
		fmt.Fprintf(out, "Equipment:   %s\n", rec.EquipmentType)
		fmt.Fprintf(out, "Lane:        %s, %s → %s, %s\n",
			rec.OriginCity, rec.OriginState, rec.DestinationCity, rec.DestinationState)
	}
	if rec.SelectedLoadID != "" {
		fmt.Fprintf(out, "Load:        %s listed at $%s\n", rec.SelectedLoadID, rec.ListedRateCents)
		if rec.Outcome == "booked" {
			fmt.Fprintf(out, "Booked at:   $%s after %d round(s)\n", rec.FinalRateCents, rec.NegotiationRounds)
		} else {
			fmt.Fprintf(out, "Negotiation: %s after %d round(s)\n", rec.NegotiationStatus, rec.NegotiationRounds)
		}
	}
	fmt.Fprintf(out, "Analytics:   sentiment=%s rate_sensitivity=%s aggressiveness=%s\n",
		rec.Sentiment, rec.RateSensitivity, rec.NegotiationAggressiveness)
	fmt.Fprintf(out, "Duration:    %s → %s\n",
		rec.StartedAt.Format("Jan 2 15:04:05"), rec.EndedAt.Format("15:04:05"))

	if rec.Offers != "" {
		var offers []negotiation.Offer
		if err := json.Unmarshal([]byte(rec.Offers), &offers); err == nil && len(offers) > 0 {
			fmt.Fprintln(out, "\nOffers:")
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROUND\tACTOR\tAMOUNT")
			for _, o := range offers {
				fmt.Fprintf(w, "%d\t%s\t$%s\n", o.Round, o.Actor, o.Amount)
			}
			w.Flush()
		}
	}
	return nil
}
