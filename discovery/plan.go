// Package discovery joins collected facts and turns them into inventory plans.
package discovery

import (
	"fmt"
	"sort"

	"dev.hon.one/netsot/common"
)

// Description - Free-text description of a discovered address.
func Description(host common.DiscoveredHost) string {
	description := fmt.Sprintf("Discovered via %v - MAC: %v", host.Source, host.MAC)
	if host.Port != nil {
		description += fmt.Sprintf(" - Connected to %v port %v", host.Port.Switch, host.Port.PortName)
	}
	return description
}

// PlanFromHosts - Address-only entries for discovered hosts, in host order. Hosts without an IP are left out.
func PlanFromHosts(hosts []common.DiscoveredHost, tags []string) []common.PlanEntry {
	entries := make([]common.PlanEntry, 0, len(hosts))
	for _, host := range hosts {
		if host.IP == "" {
			continue
		}
		entries = append(entries, common.PlanEntry{
			Address:     host.IP,
			DNSName:     host.Hostname,
			Description: Description(host),
			Tags:        tags,
			Source:      string(host.Source),
		})
	}
	return entries
}

// PlanFromMappings - Entries for every mapped address, in table order (role, device, entry).
func PlanFromMappings(tables *common.MappingTables) []common.PlanEntry {
	assignments := tables.Assignments()
	entries := make([]common.PlanEntry, 0, len(assignments))
	for _, assignment := range assignments {
		entry := common.PlanEntry{
			Address:     assignment.Mapping.Address,
			DNSName:     assignment.Mapping.DNSName,
			Description: assignment.Mapping.Description,
			Tags:        assignment.Mapping.Tags,
			Source:      "mapping:" + assignment.Role,
		}
		if assignment.Mapping.Interface != "" {
			entry.Device = assignment.Device
			entry.Interface = assignment.Mapping.Interface
		}
		entries = append(entries, entry)
	}
	return entries
}

// ResolveHosts - Entries bound to the mapped interface for discovered hosts whose IP is in the tables.
// Unmapped hosts are left out.
func ResolveHosts(tables *common.MappingTables, hosts []common.DiscoveredHost) []common.PlanEntry {
	var entries []common.PlanEntry
	for _, host := range hosts {
		assignment, ok := tables.Resolve(host.IP)
		if !ok || assignment.Mapping.Interface == "" {
			continue
		}
		dnsName := assignment.Mapping.DNSName
		if dnsName == "" {
			dnsName = host.Hostname
		}
		entries = append(entries, common.PlanEntry{
			Address:     assignment.Mapping.Address,
			DNSName:     dnsName,
			Description: Description(host),
			Tags:        assignment.Mapping.Tags,
			Source:      string(host.Source),
			Device:      assignment.Device,
			Interface:   assignment.Mapping.Interface,
		})
	}
	return entries
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
