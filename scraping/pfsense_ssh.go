package scraping

import (
	"context"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// CommandARPTable - Prints the ARP table without resolving names.
const CommandARPTable = "arp -an"

var pfsenseARPEntryRegex = regexp.MustCompile(`\(([0-9.]+)\)\s+at\s+([0-9a-fA-F:]+)`)
var pfsenseQuotedRegex = regexp.MustCompile(`"([^"]*)"`)

// ParseDHCPLeases - Parse ISC dhcpd lease file lines. Blocks without a hardware address are dropped.
// A later block for the same MAC replaces an earlier one, as dhcpd appends renewed leases.
func ParseDHCPLeases(lines []string) common.HostSet {
	hosts := make(common.HostSet)
	var currentIP, currentMAC, currentHostname string
	reset := func() {
		currentIP, currentMAC, currentHostname = "", "", ""
	}

	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "lease "):
			reset()
			fields := strings.Fields(line)
			if len(fields) > 1 {
				currentIP = fields[1]
			}
		case strings.Contains(line, "hardware ethernet"):
			fields := strings.Fields(line)
			mac := strings.TrimRight(fields[len(fields)-1], ";")
			currentMAC = strings.ToUpper(mac)
		case strings.Contains(line, "client-hostname"):
			currentHostname = ""
			if result := pfsenseQuotedRegex.FindStringSubmatch(line); result != nil {
				currentHostname = result[1]
			}
		case line == "}":
			if currentMAC != "" && currentIP != "" {
				hosts[currentMAC] = common.DiscoveredHost{
					MAC:      currentMAC,
					IP:       currentIP,
					Hostname: currentHostname,
					Source:   common.SourceLeaseTable,
					Kind:     common.HostKindDHCPClient,
				}
			}
			reset()
		}
	}

	return hosts
}

// MergeARPTable - Add hosts from `arp -an` output. MACs already known (from leases) are kept as they are.
// Returns the number of hosts added.
func MergeARPTable(hosts common.HostSet, lines []string) int {
	added := 0
	for _, line := range lines {
		result := pfsenseARPEntryRegex.FindStringSubmatch(line)
		if result == nil {
			continue
		}
		ip := result[1]
		mac, ok := common.NormalizeMAC(result[2])
		if !ok {
			log.Tracef("Skipping malformed ARP entry: %v", line)
			continue
		}
		if _, found := hosts[mac]; found {
			continue
		}
		hosts[mac] = common.DiscoveredHost{
			MAC:      mac,
			IP:       ip,
			Hostname: common.PlaceholderHostname(mac),
			Source:   common.SourceARPTable,
			Kind:     common.HostKindStatic,
		}
		added++
	}
	return added
}

// CollectFirewall - Read the lease file and the ARP table of the firewall.
// A failing command is logged and contributes nothing. The bool is false if both commands failed.
func CollectFirewall(ctx context.Context, runner CommandRunner, firewall common.Firewall) (common.HostSet, bool) {
	logger := log.WithFields(log.Fields{
		"device": firewall.Name,
	})
	hosts := make(common.HostSet)
	anySuccess := false

	leaseLines, err := runner.Run(ctx, "cat "+firewall.LeaseFile)
	if err != nil {
		logger.WithError(err).Error("Failed to read DHCP leases")
	} else {
		anySuccess = true
		hosts = ParseDHCPLeases(leaseLines)
		logger.WithField("lease_count", len(hosts)).Info("Parsed DHCP leases")
	}

	arpLines, err := runner.Run(ctx, CommandARPTable)
	if err != nil {
		logger.WithError(err).Error("Failed to read ARP table")
	} else {
		anySuccess = true
		added := MergeARPTable(hosts, arpLines)
		logger.WithField("arp_count", added).Info("Parsed ARP table")
	}

	return hosts, anySuccess
}
