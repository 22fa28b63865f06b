package main

import (
	"os"

	"github.com/spf13/cobra"

	"dev.hon.one/netsot/discovery"
	"dev.hon.one/netsot/report"
	"dev.hon.one/netsot/scraping"
	"dev.hon.one/netsot/util"
)

// mappingsCommand - Subcommand working from the mapping tables against the inventory.
func mappingsCommand(use string, short string, apply func(cmd *cobra.Command, run *commandRun) error) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newCommandRun(cmd, dryRun)
			if err != nil {
				return err
			}
			if err := run.config.RequireInventory(); err != nil {
				return err
			}
			return apply(cmd, run)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show changes without applying them")
	return cmd
}

func newAssignIPsCmd() *cobra.Command {
	return mappingsCommand("assign-ips", "Record mapped addresses on their device interfaces",
		func(cmd *cobra.Command, run *commandRun) error {
			tables, err := run.loadMappings()
			if err != nil {
				return err
			}
			ctx, cancel := util.ShutdownContext(cmd.Context())
			defer cancel()
			reconciler, err := newReconciler(ctx, run)
			if err != nil {
				return err
			}
			changes, err := reconciler.Reconcile(ctx, discovery.PlanFromMappings(tables))
			if err != nil {
				return err
			}
			report.PrintOutcomes(os.Stdout, "Address assignments", changes.Outcomes, debug)
			return run.finish(changes.Tally)
		})
}

func newSyncInterfacesCmd() *cobra.Command {
	return mappingsCommand("sync-interfaces", "Create the device interfaces declared in the mapping tables",
		func(cmd *cobra.Command, run *commandRun) error {
			tables, err := run.loadMappings()
			if err != nil {
				return err
			}
			ctx, cancel := util.ShutdownContext(cmd.Context())
			defer cancel()
			reconciler, err := newReconciler(ctx, run)
			if err != nil {
				return err
			}
			changes, err := reconciler.SyncInterfaces(ctx, tables)
			if err != nil {
				return err
			}
			report.PrintOutcomes(os.Stdout, "Interfaces", changes.Outcomes, debug)
			return run.finish(changes.Tally)
		})
}

func newCablesCmd() *cobra.Command {
	return mappingsCommand("cables", "Create cables found through the firewall ARP table and switch forwarding tables",
		func(cmd *cobra.Command, run *commandRun) error {
			tables, err := run.loadMappings()
			if err != nil {
				return err
			}
			ctx, cancel := util.ShutdownContext(cmd.Context())
			defer cancel()
			reconciler, err := newReconciler(ctx, run)
			if err != nil {
				return err
			}

			collector := scraping.NewCollector(run.config.Firewall, nil, nil)
			var neighbors map[string]string
			if run.config.Firewall.Address != "" {
				neighbors, err = collector.CollectFirewallNeighbors()
				if err != nil {
					logCollectFailure(run.config.Firewall.Name, err)
				}
			}
			result := collector.Collect(ctx, scraping.Selection{Switches: run.config.Switches})
			run.scrapes = result.Entries

			plans := discovery.PlanCables(tables, neighbors, result.Switches, run.config.Switches)
			changes, err := reconciler.ApplyCables(ctx, plans)
			if err != nil {
				return err
			}
			report.PrintOutcomes(os.Stdout, "Cables", changes.Outcomes, debug)
			return run.finish(changes.Tally)
		})
}
