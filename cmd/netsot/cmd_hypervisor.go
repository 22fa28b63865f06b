package main

import (
	"os"

	"github.com/spf13/cobra"

	"dev.hon.one/netsot/hypervisor"
	"dev.hon.one/netsot/report"
	"dev.hon.one/netsot/util"
)

func newSyncHypervisorCmd() *cobra.Command {
	var dryRun bool
	var noStale bool
	var noContainers bool
	var options hypervisor.Options

	cmd := &cobra.Command{
		Use:   "sync-hypervisor",
		Short: "Mirror Proxmox VE nodes and guests into the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newCommandRun(cmd, dryRun)
			if err != nil {
				return err
			}
			if err := run.config.RequireHypervisor(); err != nil {
				return err
			}
			if err := run.config.RequireInventory(); err != nil {
				return err
			}
			proxmox, err := hypervisor.NewClient(run.config.Hypervisor)
			if err != nil {
				return err
			}
			options.IncludeContainers = run.config.Hypervisor.IncludeContainers && !noContainers
			options.MarkStale = run.config.Hypervisor.MarkStale && !noStale

			ctx, cancel := util.ShutdownContext(cmd.Context())
			defer cancel()
			inventory, err := run.inventory(ctx)
			if err != nil {
				return err
			}
			result, err := hypervisor.NewSyncer(proxmox, inventory, run.config.Hypervisor).Sync(ctx, options)
			if err != nil {
				return err
			}
			report.PrintHypervisor(os.Stdout, result)
			return run.finish(result.Tally)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show changes without applying them")
	cmd.Flags().BoolVar(&noStale, "no-stale", false, "do not tag VMs missing from the hypervisor")
	cmd.Flags().BoolVar(&noContainers, "no-lxc", false, "skip LXC containers")
	cmd.Flags().StringVar(&options.NodeFilter, "node", "", "only sync nodes whose name contains this")
	cmd.Flags().StringVar(&options.VMIDFilter, "vmid", "", "only sync the guest with this ID")
	return cmd
}
