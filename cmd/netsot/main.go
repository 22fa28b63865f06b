// netsot - Keeps the Nautobot inventory in line with what the network reports.
//
// Usage:
//
//	netsot discover [--dry-run] [--source <name>|all]   Record hosts seen by the firewall and switches
//	netsot assign-ips [--dry-run]                        Record mapped addresses on their interfaces
//	netsot sync-interfaces [--dry-run]                   Create declared device interfaces
//	netsot cables [--dry-run]                            Create cables found through ARP and FDB tables
//	netsot sync-hypervisor [--dry-run]                   Mirror Proxmox VE nodes and guests
//	netsot import-dns [--dry-run] [--hosts <file>]       Import a hosts list into Technitium DNS
package main

import (
	"context"
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/util"
)

// Exit codes.
const (
	exitOK       = 0
	exitFatal    = 1
	exitFailures = 2
)

var (
	configPath string
	debug      bool
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	os.Exit(exitCode(err))
}

var rootCmd = &cobra.Command{
	Use:               common.AppName,
	Short:             "Network source-of-truth reconciliation",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Version:           common.AppVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		util.SetupLogging(debug)
		log.Infof("Starting %v version %v by %v", common.AppName, common.AppVersion, common.AppAuthor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", common.DefaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "show debug messages")

	rootCmd.AddCommand(
		newDiscoverCmd(),
		newAssignIPsCmd(),
		newSyncInterfacesCmd(),
		newCablesCmd(),
		newSyncHypervisorCmd(),
		newImportDNSCmd(),
	)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFailuresCounted):
		log.WithError(err).Warn("Run finished with failures")
		return exitFailures
	case errors.Is(err, context.Canceled):
		log.Warn("Run interrupted")
		return exitFatal
	default:
		log.WithError(err).Error("Run aborted")
		return exitFatal
	}
}
