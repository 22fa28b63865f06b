// Package report prints run reports and pushes run metrics.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/discovery"
	"dev.hon.one/netsot/dns"
	"dev.hon.one/netsot/hypervisor"
	"dev.hon.one/netsot/reconcile"
)

// DefaultGroupLimit - Hosts shown per group in the discovery report.
const DefaultGroupLimit = 15

const ruler = "======================================================================"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func header(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%v\n%v\n%v\n", ruler, title, ruler)
}

// PrintDiscovery - Hosts grouped by kind and ordered by IP, at most limit per group.
func PrintDiscovery(w io.Writer, correlation discovery.Correlation, limit int) {
	header(w, "Discovered devices")
	groups := []struct {
		kind  common.HostKind
		title string
	}{
		{common.HostKindDHCPClient, "DHCP clients"},
		{common.HostKindStatic, "Static / ARP devices"},
	}
	for _, group := range groups {
		var hosts []common.DiscoveredHost
		for _, host := range correlation.Hosts {
			if host.Kind == group.kind {
				hosts = append(hosts, host)
			}
		}
		fmt.Fprintf(w, "\n%v (%d)\n", group.title, len(hosts))
		table := newTable(w)
		for i, host := range hosts {
			if limit > 0 && i >= limit {
				fmt.Fprintf(table, "  ... and %d more\n", len(hosts)-limit)
				break
			}
			port := ""
			if host.Port != nil {
				port = host.Port.Switch + " " + host.Port.PortName
			}
			fmt.Fprintf(table, "  %v\t%v\t%v\t%v\n", host.IP, host.MAC, host.Hostname, port)
		}
		table.Flush()
	}

	if len(correlation.SwitchOnly) > 0 {
		fmt.Fprintf(w, "\nOnly seen on switches: %d\n", len(correlation.SwitchOnly))
	}
	if len(correlation.Anomalies) > 0 {
		fmt.Fprintf(w, "\nMACs seen on several switches (%d)\n", len(correlation.Anomalies))
		for _, anomaly := range correlation.Anomalies {
			fmt.Fprintf(w, "  %v\n", anomaly)
		}
	}
	fmt.Fprintf(w, "\nTotal: %d devices\n", len(correlation.Hosts))
}

// PrintOutcomes - One line per outcome. Skips are left out unless verbose.
func PrintOutcomes(w io.Writer, title string, outcomes []reconcile.Outcome, verbose bool) {
	header(w, title)
	table := newTable(w)
	for _, outcome := range outcomes {
		if !verbose && (outcome.Action == reconcile.ActionSkip || outcome.Action == reconcile.ActionNoPrefix) {
			continue
		}
		fmt.Fprintf(table, "  %v\t%v\t%v\n", outcome.Action, outcome.Subject, outcome.Detail)
	}
	table.Flush()
}

// PrintTally - Final counters of a run.
func PrintTally(w io.Writer, command string, dryRun bool, tally common.Tally) {
	mode := "COMMIT"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w, "\n%v %v: created=%d linked=%d updated=%d skipped=%d failed=%d\n",
		command, mode, tally.Created, tally.Linked, tally.Updated, tally.Skipped, tally.Failed)
	if dryRun {
		fmt.Fprintln(w, "Run without --dry-run to apply the changes.")
	}
}

// PrintHypervisor - Sync summary and newly stale VMs.
func PrintHypervisor(w io.Writer, report hypervisor.Report) {
	header(w, "Hypervisor sync")
	fmt.Fprintf(w, "Nodes: %d\nGuests: %d\nGuest agent failures: %d\n", report.Nodes, report.Guests, report.AgentFailures)
	if len(report.Stale) > 0 {
		fmt.Fprintf(w, "Marked stale: %v\n", strings.Join(report.Stale, ", "))
	}
}

// PrintDNS - Import summary.
func PrintDNS(w io.Writer, report dns.Report) {
	header(w, "DNS import")
	fmt.Fprintf(w, "Zones ensured: %d\nRecords added: %d\n", report.Zones, report.Records)
}
