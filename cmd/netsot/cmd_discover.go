package main

import (
	"os"

	"github.com/spf13/cobra"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/discovery"
	"dev.hon.one/netsot/report"
	"dev.hon.one/netsot/scraping"
	"dev.hon.one/netsot/util"
)

func newDiscoverCmd() *cobra.Command {
	var dryRun bool
	var source string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Record hosts seen by the firewall and switches",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newCommandRun(cmd, dryRun)
			if err != nil {
				return err
			}
			selection, err := scraping.SelectSources(run.config, source)
			if err != nil {
				return err
			}
			if selection.Firewall {
				if err := run.config.RequireFirewall(); err != nil {
					return err
				}
			}
			if err := run.config.RequireInventory(); err != nil {
				return err
			}
			tables, err := run.optionalMappings()
			if err != nil {
				return err
			}

			ctx, cancel := util.ShutdownContext(cmd.Context())
			defer cancel()
			reconciler, err := newReconciler(ctx, run)
			if err != nil {
				return err
			}

			collector := scraping.NewCollector(run.config.Firewall, scraping.NewSSHRunner(run.config.Firewall), nil)
			result := collector.Collect(ctx, selection)
			run.scrapes = result.Entries
			correlation := discovery.Correlate(result.Hosts, result.Switches)
			run.hosts = correlation.Hosts
			report.PrintDiscovery(os.Stdout, correlation, report.DefaultGroupLimit)

			changes, err := reconciler.Reconcile(ctx, planDiscovered(tables, correlation.Hosts, run.config.Inventory.Tags))
			if err != nil {
				return err
			}
			report.PrintOutcomes(os.Stdout, "Inventory changes", changes.Outcomes, debug)
			return run.finish(changes.Tally)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show changes without applying them")
	cmd.Flags().StringVar(&source, "source", scraping.SourceAll, "firewall or switch name to collect, or all")
	return cmd
}

// planDiscovered - Hosts found in the mapping tables are bound to their interface,
// the rest are recorded as addresses only.
func planDiscovered(tables *common.MappingTables, hosts []common.DiscoveredHost, tags []string) []common.PlanEntry {
	entries := discovery.ResolveHosts(tables, hosts)
	var unmapped []common.DiscoveredHost
	for _, host := range hosts {
		if assignment, ok := tables.Resolve(host.IP); ok && assignment.Mapping.Interface != "" {
			continue
		}
		unmapped = append(unmapped, host)
	}
	return append(entries, discovery.PlanFromHosts(unmapped, tags)...)
}
