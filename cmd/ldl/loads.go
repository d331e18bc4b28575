package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadline/loadline/internal/catalog"
	"github.com/loadline/loadline/internal/matching"
)

func newLoadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loads",
		Short: "Load catalog commands",
	}

	cmd.AddCommand(newLoadsListCmd())
	cmd.AddCommand(newLoadsExpireCmd())
	return cmd
}

func newLoadsListCmd() *cobra.Command {
	var (
		configPath string
		equipment  string
		state      string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loads in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadsList(cmd, configPath, equipment, state, all)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	cmd.Flags().StringVar(&equipment, "equipment", "", "filter by equipment type (synonyms accepted)")
	cmd.Flags().StringVar(&state, "state", "", "filter by origin state")
	cmd.Flags().BoolVar(&all, "all", false, "include expired loads")
	return cmd
}

func runLoadsList(cmd *cobra.Command, configPath, equipment, state string, all bool) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if equipment != "" {
		equipment, err = matching.NormalizeEquipment(equipment)
		if err != nil {
			return err
		}
	}
	if state != "" {
		state, err = matching.NormalizeState(state)
		if err != nil {
			return err
		}
	}

	loads, err := catalog.Query(cmd.Context(), gormDB, catalog.Filters{
		EquipmentType: equipment,
		OriginState:   state,
		ActiveOnly:    !all,
	})
	if err != nil {
		return err
	}
	if len(loads) == 0 {
		fmt.Fprintln(out, "No loads found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOAD\tLANE\tPICKUP\tEQUIPMENT\tMILES\tRATE\tACTIVE")
	for _, l := range loads {
		fmt.Fprintf(w, "%s\t%s, %s → %s, %s\t%s\t%s\t%.0f\t$%s\t%v\n",
			l.LoadID,
			l.OriginCity, l.OriginState, l.DestinationCity, l.DestinationState,
			l.PickupDate.Format("Jan 2"),
			l.EquipmentType,
			l.Miles,
			l.TotalRateCents,
			l.IsActive,
		)
	}
	return w.Flush()
}

func newLoadsExpireCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Deactivate loads whose pickup date has passed",
		Long:  "Runs the catalog expiry sweep once. The serve command runs the same sweep hourly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			n, err := catalog.ExpireStale(gormDB, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d loads\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	return cmd
}
