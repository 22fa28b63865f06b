package scraping

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// MACFromOIDSuffix - Decode the trailing six components of an OID suffix as MAC octets.
func MACFromOIDSuffix(suffix []string) (string, bool) {
	if len(suffix) < 6 {
		return "", false
	}
	octets := make([]byte, 6)
	for i, part := range suffix[len(suffix)-6:] {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 || value > 255 {
			return "", false
		}
		octets[i] = byte(value)
	}
	return common.FormatMAC(octets), true
}

// DecodeForwardingTable - MAC to bridge port index, from a dot1q or dot1d forwarding table walk.
// Rows with fewer than six suffix components or a non-integer value are ignored.
func DecodeForwardingTable(rows []SNMPRow) map[string]int {
	result := make(map[string]int)
	for _, row := range rows {
		mac, ok := MACFromOIDSuffix(row.Suffix)
		if !ok {
			log.Tracef("Ignoring malformed forwarding table row: %v", strings.Join(row.Suffix, "."))
			continue
		}
		port, ok := row.Int()
		if !ok {
			continue
		}
		result[mac] = port
	}
	return result
}

// DecodeInterfaceNames - Port index to interface name, from an ifName walk.
func DecodeInterfaceNames(rows []SNMPRow) map[int]string {
	result := make(map[int]string)
	for _, row := range rows {
		if len(row.Suffix) == 0 {
			continue
		}
		index, err := strconv.Atoi(row.Suffix[len(row.Suffix)-1])
		if err != nil {
			continue
		}
		result[index] = row.String()
	}
	return result
}

// DecodeNeighborTable - IP to MAC, from an ipNetToMediaPhysAddress walk (suffix ifIndex.a.b.c.d).
func DecodeNeighborTable(rows []SNMPRow) map[string]string {
	result := make(map[string]string)
	for _, row := range rows {
		if len(row.Suffix) < 5 {
			continue
		}
		octets, ok := row.Bytes()
		if !ok || len(octets) != 6 {
			continue
		}
		ip := strings.Join(row.Suffix[len(row.Suffix)-4:], ".")
		result[ip] = common.FormatMAC(octets)
	}
	return result
}

// PortName - Label of a bridge port: configured alias, then ifName, then `port-<index>`.
func PortName(index int, names map[int]string, aliases map[string]string) string {
	if alias, ok := aliases[strconv.Itoa(index)]; ok && alias != "" {
		return alias
	}
	if name, ok := names[index]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("port-%d", index)
}

// BuildSwitchPortTable - Join forwarding table entries with port names.
func BuildSwitchPortTable(switchName string, fdb map[string]int, names map[int]string, aliases map[string]string) map[string]common.SwitchPortEntry {
	result := make(map[string]common.SwitchPortEntry, len(fdb))
	for mac, index := range fdb {
		result[mac] = common.SwitchPortEntry{
			Switch:    switchName,
			MAC:       mac,
			PortIndex: index,
			PortName:  PortName(index, names, aliases),
		}
	}
	return result
}

// CollectSwitch - Walk the forwarding and interface name tables of a switch.
// Partial walks are used as far as they got, the error is returned alongside.
func CollectSwitch(walker *Walker, sw common.Switch) (map[string]common.SwitchPortEntry, error) {
	fdbOID := sw.FDBOID
	if fdbOID == "" {
		fdbOID = common.OIDDot1qTpFdbPort
	}
	fdbRows, fdbErr := walker.Walk(fdbOID)
	nameRows, nameErr := walker.Walk(common.OIDIfName)

	fdb := DecodeForwardingTable(fdbRows)
	names := DecodeInterfaceNames(nameRows)
	table := BuildSwitchPortTable(sw.Name, fdb, names, sw.PortAliases)

	log.WithFields(log.Fields{
		"device":     sw.Name,
		"mac_count":  len(table),
		"port_names": len(names),
	}).Info("Collected forwarding table")

	if fdbErr != nil {
		return table, fdbErr
	}
	return table, nameErr
}
