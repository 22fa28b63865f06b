package common

import "fmt"

// Default SNMP OIDs.
const (
	OIDDot1qTpFdbPort          = "1.3.6.1.2.1.17.7.1.2.2.1.2"
	OIDDot1dTpFdbPort          = "1.3.6.1.2.1.17.4.3.1.2"
	OIDIfName                  = "1.3.6.1.2.1.31.1.1.1.1"
	OIDIPNetToMediaPhysAddress = "1.3.6.1.2.1.4.22.1.2"
)

// Credential - SSH credential for a device.
type Credential struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	PrivateKeyPath string `json:"private_key_path"`
}

// Firewall - The SSH-reachable firewall holding the DHCP lease table and the ARP table.
type Firewall struct {
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Port           uint    `json:"port"` // Optional, default to 1815
	LeaseFile      string  `json:"lease_file"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	SNMPCommunity  string  `json:"snmp_community"` // For the ARP table walk used for cables
	Credential
}

// Switch - An SNMP-polled switch. Order in the config is the precedence order when correlating.
type Switch struct {
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	Port             uint16            `json:"port"` // Optional, default to 161
	Community        string            `json:"community"`
	FDBOID           string            `json:"fdb_oid"`
	TimeoutSeconds   float64           `json:"timeout_seconds"`
	InventoryDevice  string            `json:"inventory_device"`  // Device name in the inventory, for cables
	PortAliases      map[string]string `json:"port_aliases"`      // Bridge port index to label, used instead of ifName
	InterfaceAliases map[string]string `json:"interface_aliases"` // Label prefix to inventory interface name prefix
}

// SSHAddress - Address with port for dialing.
func (firewall Firewall) SSHAddress() string {
	port := uint(22)
	if firewall.Port > 0 {
		port = firewall.Port
	}
	return fmt.Sprintf("%v:%v", firewall.Address, port)
}
