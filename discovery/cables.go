package discovery

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/scraping"
)

// NormalizePortName - Rewrite a switch port label to the inventory interface name using prefix aliases.
// The longest matching prefix wins, labels without a match are kept.
func NormalizePortName(name string, aliases map[string]string) string {
	prefixes := make([]string, 0, len(aliases))
	for prefix := range aliases {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return aliases[prefix] + name[len(prefix):]
		}
	}
	return name
}

// PlanCables - Declared cables first, then cables found by following mapped addresses through the
// firewall ARP table (IP to MAC) to the switch port the MAC was seen on.
func PlanCables(tables *common.MappingTables, neighbors map[string]string, switchTables []scraping.SwitchTable, switches []common.Switch) []common.CablePlan {
	var plans []common.CablePlan
	seen := make(map[string]bool)
	add := func(plan common.CablePlan) {
		key := plan.DeviceA + "/" + plan.InterfaceA
		if seen[key] {
			return
		}
		seen[key] = true
		plans = append(plans, plan)
	}

	for _, cable := range tables.Cables {
		add(common.CablePlan{
			DeviceA:    cable.DeviceA,
			InterfaceA: cable.InterfaceA,
			DeviceB:    cable.DeviceB,
			InterfaceB: cable.InterfaceB,
			Label:      cable.Label,
		})
	}

	configs := make(map[string]common.Switch, len(switches))
	for _, sw := range switches {
		configs[sw.Name] = sw
	}

	for _, assignment := range tables.Assignments() {
		if assignment.Mapping.Interface == "" {
			continue
		}
		ip := common.HostIP(assignment.Mapping.Address)
		mac, found := neighbors[ip]
		if !found {
			continue
		}
		entry, found := lookupPort(switchTables, mac)
		if !found {
			log.WithFields(log.Fields{
				"ip_address":  ip,
				"mac_address": mac,
			}).Trace("MAC not seen on any switch")
			continue
		}
		sw := configs[entry.Switch]
		switchDevice := sw.InventoryDevice
		if switchDevice == "" {
			switchDevice = sw.Name
		}
		if switchDevice == assignment.Device {
			continue
		}
		add(common.CablePlan{
			DeviceA:    assignment.Device,
			InterfaceA: assignment.Mapping.Interface,
			DeviceB:    switchDevice,
			InterfaceB: NormalizePortName(entry.PortName, sw.InterfaceAliases),
		})
	}
	return plans
}

func lookupPort(switchTables []scraping.SwitchTable, mac string) (common.SwitchPortEntry, bool) {
	for _, table := range switchTables {
		if entry, found := table.Ports[mac]; found {
			return entry, true
		}
	}
	return common.SwitchPortEntry{}, false
}
