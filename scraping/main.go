package scraping

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// SourceAll - Selects every configured source.
const SourceAll = "all"

// SwitchTable - Forwarding table of one switch, keyed by MAC.
type SwitchTable struct {
	Name  string
	Ports map[string]common.SwitchPortEntry
}

// Result - Everything collected in one pass.
type Result struct {
	Hosts    common.HostSet
	Switches []SwitchTable // In configured precedence order
	Entries  []common.ScrapeEntry
}

// Selection - Which sources to collect.
type Selection struct {
	Firewall bool
	Switches []common.Switch
}

// SelectSources - Resolve a source name (firewall name, switch name or "all").
// "pfsense" and "firewall" are accepted for the firewall regardless of its configured name.
func SelectSources(config *common.Config, source string) (Selection, error) {
	switch source {
	case "", SourceAll:
		return Selection{Firewall: true, Switches: config.Switches}, nil
	case config.Firewall.Name, "pfsense", "firewall":
		return Selection{Firewall: true}, nil
	}
	for _, sw := range config.Switches {
		if sw.Name == source {
			return Selection{Switches: []common.Switch{sw}}, nil
		}
	}
	return Selection{}, fmt.Errorf("%w: unknown source %q", common.ErrInvalidConfig, source)
}

// Collector - Collects from the firewall and the switches.
type Collector struct {
	firewall   common.Firewall
	runner     CommandRunner
	newHandler func(common.Switch) gosnmp.Handler
}

// NewCollector - Collector using SSH for the firewall and SNMP handlers from the factory.
func NewCollector(firewall common.Firewall, runner CommandRunner, newHandler func(common.Switch) gosnmp.Handler) *Collector {
	if newHandler == nil {
		newHandler = NewSNMPHandler
	}
	return &Collector{
		firewall:   firewall,
		runner:     runner,
		newHandler: newHandler,
	}
}

// Collect - Collect the selected sources in sequence. Failing sources are logged and left empty.
func (collector *Collector) Collect(ctx context.Context, selection Selection) Result {
	result := Result{Hosts: make(common.HostSet)}

	if selection.Firewall && ctx.Err() == nil {
		startTime := time.Now()
		hosts, success := CollectFirewall(ctx, collector.runner, collector.firewall)
		result.Hosts = hosts
		result.Entries = append(result.Entries, common.ScrapeEntry{
			Time:     startTime,
			Source:   collector.firewall.Name,
			Duration: time.Since(startTime),
			Success:  success,
			Records:  len(hosts),
		})
	}

	for _, sw := range selection.Switches {
		if ctx.Err() != nil {
			break
		}
		startTime := time.Now()
		ports, err := collector.collectSwitch(sw)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"device": sw.Name,
			}).Error("Failed to collect switch")
		}
		result.Switches = append(result.Switches, SwitchTable{Name: sw.Name, Ports: ports})
		result.Entries = append(result.Entries, common.ScrapeEntry{
			Time:     startTime,
			Source:   sw.Name,
			Duration: time.Since(startTime),
			Success:  err == nil,
			Records:  len(ports),
		})
	}

	return result
}

func (collector *Collector) collectSwitch(sw common.Switch) (map[string]common.SwitchPortEntry, error) {
	handler := collector.newHandler(sw)
	if err := handler.Connect(); err != nil {
		return map[string]common.SwitchPortEntry{}, fmt.Errorf("connect to %v: %w", sw.Address, err)
	}
	defer handler.Close()
	return CollectSwitch(NewWalker(sw.Name, handler), sw)
}

// CollectFirewallNeighbors - Walk the firewall ARP table over SNMP, IP to MAC.
func (collector *Collector) CollectFirewallNeighbors() (map[string]string, error) {
	agent := common.Switch{
		Name:           collector.firewall.Name,
		Address:        collector.firewall.Address,
		Community:      collector.firewall.SNMPCommunity,
		TimeoutSeconds: collector.firewall.TimeoutSeconds,
	}
	handler := collector.newHandler(agent)
	if err := handler.Connect(); err != nil {
		return map[string]string{}, fmt.Errorf("connect to %v: %w", agent.Address, err)
	}
	defer handler.Close()

	rows, err := NewWalker(agent.Name, handler).Walk(common.OIDIPNetToMediaPhysAddress)
	neighbors := DecodeNeighborTable(rows)
	log.WithFields(log.Fields{
		"device":         agent.Name,
		"neighbor_count": len(neighbors),
	}).Info("Collected ARP table")
	return neighbors, err
}
