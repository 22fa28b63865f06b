package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/dns"
	"dev.hon.one/netsot/report"
	"dev.hon.one/netsot/util"
)

func newImportDNSCmd() *cobra.Command {
	var dryRun bool
	var hostsFile string

	cmd := &cobra.Command{
		Use:   "import-dns",
		Short: "Import a hosts list into Technitium DNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newCommandRun(cmd, dryRun)
			if err != nil {
				return err
			}
			if err := run.config.RequireDNS(); err != nil {
				return err
			}
			if len(run.config.DNS.Zones) == 0 {
				return fmt.Errorf("%w: no DNS zones configured", common.ErrInvalidConfig)
			}
			client, err := dns.NewClient(run.config.DNS, dryRun)
			if err != nil {
				return err
			}
			if hostsFile == "" {
				hostsFile = run.config.DNS.HostsFile
			}
			entries, err := dns.ParseHostsFile(hostsFile)
			if err != nil {
				return err
			}

			ctx, cancel := util.ShutdownContext(cmd.Context())
			defer cancel()
			result, err := dns.NewImporter(client, run.config.DNS.Zones, run.config.DNS.Catalog).Import(ctx, entries)
			if err != nil {
				return err
			}
			report.PrintDNS(os.Stdout, result)
			return run.finish(result.Tally)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show changes without applying them")
	cmd.Flags().StringVar(&hostsFile, "hosts", "", "hosts list file (default from config)")
	return cmd
}
