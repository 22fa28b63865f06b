package common

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// Source - Where a discovered host was learned from.
type Source string

// Discovery sources.
const (
	SourceLeaseTable Source = "dhcp"
	SourceARPTable   Source = "arp"
)

// HostKind - Address assignment kind of a discovered host.
type HostKind string

// Host kinds.
const (
	HostKindDHCPClient HostKind = "dhcp-client"
	HostKindStatic     HostKind = "static"
)

// SwitchPortEntry - A MAC address seen on a switch port.
type SwitchPortEntry struct {
	Switch    string
	MAC       string
	PortIndex int
	PortName  string
}

// DiscoveredHost - A host found on the network during one run, keyed by MAC address.
type DiscoveredHost struct {
	MAC      string
	IP       string
	Hostname string
	Source   Source
	Kind     HostKind
	Port     *SwitchPortEntry // Optional
}

// HostSet - Discovered hosts keyed by MAC address.
type HostSet map[string]DiscoveredHost

// SortedByIP - Hosts ordered by numeric IP address, hosts without an IP last (ordered by MAC).
func (hosts HostSet) SortedByIP() []DiscoveredHost {
	result := make([]DiscoveredHost, 0, len(hosts))
	for _, host := range hosts {
		result = append(result, host)
	}
	sort.SliceStable(result, func(i, j int) bool {
		a := net.ParseIP(result[i].IP).To16()
		b := net.ParseIP(result[j].IP).To16()
		switch {
		case a == nil && b == nil:
			return result[i].MAC < result[j].MAC
		case a == nil:
			return false
		case b == nil:
			return true
		}
		if cmp := bytes.Compare(a, b); cmp != 0 {
			return cmp < 0
		}
		return result[i].MAC < result[j].MAC
	})
	return result
}

// FormatMAC - Format MAC octets as uppercase colon-separated pairs.
func FormatMAC(octets []byte) string {
	parts := make([]string, len(octets))
	for i, octet := range octets {
		parts[i] = fmt.Sprintf("%02X", octet)
	}
	return strings.Join(parts, ":")
}

// NormalizeMAC - Canonical MAC form (XX:XX:XX:XX:XX:XX). Returns false if not a 48-bit MAC.
func NormalizeMAC(raw string) (string, bool) {
	mac, err := net.ParseMAC(strings.TrimSpace(raw))
	if err != nil || len(mac) != 6 {
		return "", false
	}
	return FormatMAC(mac), true
}

// PlaceholderHostname - Hostname used when a host did not announce one.
func PlaceholderHostname(mac string) string {
	return "device-" + strings.ReplaceAll(mac, ":", "")
}

// HostIP - Strip any prefix length from an address.
func HostIP(address string) string {
	if i := strings.IndexByte(address, '/'); i >= 0 {
		return address[:i]
	}
	return address
}

// WithPrefixLength - Add a host prefix length to an address if it has none.
func WithPrefixLength(address string) string {
	if strings.Contains(address, "/") {
		return address
	}
	if ip := net.ParseIP(address); ip != nil && ip.To4() == nil {
		return address + "/128"
	}
	return address + "/32"
}

// PlanEntry - A proposed address, optionally bound to a device interface.
type PlanEntry struct {
	Address     string // With or without prefix length
	DNSName     string
	Description string
	Tags        []string
	Source      string
	Device      string // Empty for address-only entries
	Interface   string
}

// HasTarget - If the entry binds the address to an interface.
func (entry PlanEntry) HasTarget() bool {
	return entry.Device != ""
}

// CablePlan - A proposed cable between two device interfaces.
type CablePlan struct {
	DeviceA    string
	InterfaceA string
	DeviceB    string
	InterfaceB string
	Label      string
}

// Tally - Outcome counters of a run.
type Tally struct {
	Created int
	Linked  int
	Updated int
	Skipped int
	Failed  int
}

// ScrapeEntry - Timing and result of collecting one source.
type ScrapeEntry struct {
	Time     time.Time
	Source   string
	Duration time.Duration
	Success  bool
	Records  int
}

// RunEntry - Summary of one command run.
type RunEntry struct {
	Time     time.Time
	Command  string
	DryRun   bool
	Duration time.Duration
	Tally    Tally
}
