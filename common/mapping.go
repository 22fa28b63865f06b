package common

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/util"
)

// Device roles, in the order their mapping tables are processed.
const (
	RoleFirewall      = "firewall"
	RoleCompute       = "compute"
	RoleStorage       = "storage"
	RoleNetworkSwitch = "network_switch"
	RoleGeneric       = "generic"
)

// AddressMapping - An expected address on a device interface.
type AddressMapping struct {
	Address     string   `yaml:"address"`
	Interface   string   `yaml:"interface"`
	DNSName     string   `yaml:"dns_name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// InterfaceMapping - An interface that should exist on a device.
type InterfaceMapping struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// DeviceMapping - Expected addresses and interfaces of one device.
type DeviceMapping struct {
	Device     string             `yaml:"device"`
	Addresses  []AddressMapping   `yaml:"addresses"`
	Interfaces []InterfaceMapping `yaml:"interfaces"`
}

// CableMapping - A known cable between two device interfaces.
type CableMapping struct {
	DeviceA    string `yaml:"device_a"`
	InterfaceA string `yaml:"interface_a"`
	DeviceB    string `yaml:"device_b"`
	InterfaceB string `yaml:"interface_b"`
	Label      string `yaml:"label"`
}

// MappingTables - Static mapping tables, one per device role.
type MappingTables struct {
	Firewall      []DeviceMapping `yaml:"firewall"`
	Compute       []DeviceMapping `yaml:"compute"`
	Storage       []DeviceMapping `yaml:"storage"`
	NetworkSwitch []DeviceMapping `yaml:"network_switch"`
	Generic       []DeviceMapping `yaml:"generic"`
	Cables        []CableMapping  `yaml:"cables"`
}

// RoleTable - Mapping table for one role.
type RoleTable struct {
	Role    string
	Devices []DeviceMapping
}

// Assignment - Where an address belongs.
type Assignment struct {
	Role    string
	Device  string
	Mapping AddressMapping
}

// LoadMappingTables - Load and validate the mapping tables file.
func LoadMappingTables(path string) (*MappingTables, error) {
	log.WithFields(log.Fields{
		"mappings_path": path,
	}).Trace("Loading mapping tables")
	var tables MappingTables
	if err := util.ParseYAMLFile(&tables, path); err != nil {
		return nil, err
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"device_count":  tables.DeviceCount(),
		"address_count": len(tables.Assignments()),
	}).Info("Loaded mapping tables")
	return &tables, nil
}

// Roles - Tables in processing order.
func (tables *MappingTables) Roles() []RoleTable {
	return []RoleTable{
		{Role: RoleFirewall, Devices: tables.Firewall},
		{Role: RoleCompute, Devices: tables.Compute},
		{Role: RoleStorage, Devices: tables.Storage},
		{Role: RoleNetworkSwitch, Devices: tables.NetworkSwitch},
		{Role: RoleGeneric, Devices: tables.Generic},
	}
}

// DeviceCount - Number of devices over all roles.
func (tables *MappingTables) DeviceCount() int {
	count := 0
	for _, role := range tables.Roles() {
		count += len(role.Devices)
	}
	return count
}

// Assignments - All address mappings in processing order (role, device, entry).
func (tables *MappingTables) Assignments() []Assignment {
	var result []Assignment
	for _, role := range tables.Roles() {
		for _, device := range role.Devices {
			for _, address := range device.Addresses {
				result = append(result, Assignment{Role: role.Role, Device: device.Device, Mapping: address})
			}
		}
	}
	return result
}

// Resolve - Find the device interface an IP address belongs to.
func (tables *MappingTables) Resolve(ip string) (Assignment, bool) {
	ip = HostIP(ip)
	for _, assignment := range tables.Assignments() {
		if HostIP(assignment.Mapping.Address) == ip {
			return assignment, true
		}
	}
	return Assignment{}, false
}

// Validate - Each address may appear once and each (device, interface) pair once.
func (tables *MappingTables) Validate() error {
	addresses := make(map[string]bool)
	targets := make(map[string]bool)
	for _, assignment := range tables.Assignments() {
		if assignment.Device == "" || assignment.Mapping.Address == "" {
			return fmt.Errorf("%w: mapping entry missing device or address in %v table", ErrInvalidConfig, assignment.Role)
		}
		ip := HostIP(assignment.Mapping.Address)
		if addresses[ip] {
			return fmt.Errorf("%w: duplicate mapped address %v", ErrInvalidConfig, ip)
		}
		addresses[ip] = true
		if assignment.Mapping.Interface == "" {
			continue
		}
		target := assignment.Device + "/" + assignment.Mapping.Interface
		if targets[target] {
			return fmt.Errorf("%w: duplicate mapped interface %v", ErrInvalidConfig, target)
		}
		targets[target] = true
	}
	return nil
}
