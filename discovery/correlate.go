package discovery

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/scraping"
)

// Anomaly - A MAC seen on more than one switch in the same run.
type Anomaly struct {
	MAC     string
	Kept    common.SwitchPortEntry
	Ignored common.SwitchPortEntry
}

func (anomaly Anomaly) String() string {
	return fmt.Sprintf("%v on %v %v and %v %v, using %v", anomaly.MAC,
		anomaly.Kept.Switch, anomaly.Kept.PortName,
		anomaly.Ignored.Switch, anomaly.Ignored.PortName,
		anomaly.Kept.Switch)
}

// Correlation - Hosts annotated with switch ports.
type Correlation struct {
	Hosts      []common.DiscoveredHost // Ordered by IP
	SwitchOnly []common.SwitchPortEntry
	Anomalies  []Anomaly
}

// Correlate - Attach the switch port each host's MAC was seen on.
// Switches are given in precedence order: the first switch reporting a MAC wins and
// every other sighting is recorded as an anomaly.
func Correlate(hosts common.HostSet, switches []scraping.SwitchTable) Correlation {
	var result Correlation
	ports := make(map[string]common.SwitchPortEntry)
	var macOrder []string
	for _, table := range switches {
		for _, mac := range sortedKeys(table.Ports) {
			entry := table.Ports[mac]
			if kept, found := ports[mac]; found {
				anomaly := Anomaly{MAC: mac, Kept: kept, Ignored: entry}
				log.WithFields(log.Fields{
					"mac_address": mac,
					"kept":        kept.Switch + " " + kept.PortName,
					"ignored":     entry.Switch + " " + entry.PortName,
				}).Warn("MAC seen on several switches")
				result.Anomalies = append(result.Anomalies, anomaly)
				continue
			}
			ports[mac] = entry
			macOrder = append(macOrder, mac)
		}
	}

	result.Hosts = hosts.SortedByIP()
	for i := range result.Hosts {
		if entry, found := ports[result.Hosts[i].MAC]; found {
			port := entry
			result.Hosts[i].Port = &port
		}
	}

	for _, mac := range macOrder {
		if _, found := hosts[mac]; !found {
			result.SwitchOnly = append(result.SwitchOnly, ports[mac])
		}
	}

	log.WithFields(log.Fields{
		"host_count":        len(result.Hosts),
		"switch_only_count": len(result.SwitchOnly),
		"anomaly_count":     len(result.Anomalies),
	}).Info("Correlated sources")
	return result
}
