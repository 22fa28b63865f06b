package nautobot

import (
	"context"
	"errors"
)

// Default tag color.
const DefaultTagColor = "9e9e9e"

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NewIPAddress - Fields of an address to create.
type NewIPAddress struct {
	Address     string
	StatusID    string
	ParentID    string
	DNSName     string
	Description string
	TagIDs      []string
}

// CreateIPAddress - Create an address.
func (client *Client) CreateIPAddress(ctx context.Context, request NewIPAddress) (*IPAddress, error) {
	payload := map[string]interface{}{
		"address":     request.Address,
		"status":      request.StatusID,
		"dns_name":    request.DNSName,
		"description": request.Description,
	}
	if request.ParentID != "" {
		payload["parent"] = request.ParentID
	}
	if len(request.TagIDs) > 0 {
		payload["tags"] = request.TagIDs
	}
	var created IPAddress
	if err := client.create(ctx, EndpointIPAddresses, payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// LinkIPToInterface - Assign an address to a device interface.
func (client *Client) LinkIPToInterface(ctx context.Context, ipAddressID string, interfaceID string) error {
	var created IPAddressToInterface
	return client.create(ctx, EndpointIPToInterface, map[string]interface{}{
		"ip_address": ipAddressID,
		"interface":  interfaceID,
	}, &created)
}

// LinkIPToVMInterface - Assign an address to a VM interface.
func (client *Client) LinkIPToVMInterface(ctx context.Context, ipAddressID string, vmInterfaceID string) error {
	var created IPAddressToInterface
	return client.create(ctx, EndpointIPToInterface, map[string]interface{}{
		"ip_address":   ipAddressID,
		"vm_interface": vmInterfaceID,
	}, &created)
}

// NewInterface - Fields of a device interface to create.
type NewInterface struct {
	DeviceID    string
	Name        string
	Type        string
	StatusID    string
	Description string
}

// CreateInterface - Create a device interface.
func (client *Client) CreateInterface(ctx context.Context, request NewInterface) (*Interface, error) {
	interfaceType := request.Type
	if interfaceType == "" {
		interfaceType = "other"
	}
	var created Interface
	err := client.create(ctx, EndpointInterfaces, map[string]interface{}{
		"device":      request.DeviceID,
		"name":        request.Name,
		"type":        interfaceType,
		"status":      request.StatusID,
		"description": request.Description,
		"enabled":     true,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateTag - Create a tag usable on addresses, prefixes, devices and VMs.
func (client *Client) CreateTag(ctx context.Context, name string, color string) (*Tag, error) {
	if color == "" {
		color = DefaultTagColor
	}
	var created Tag
	err := client.create(ctx, EndpointTags, map[string]interface{}{
		"name":  name,
		"color": color,
		"content_types": []string{
			"ipam.ipaddress",
			"ipam.prefix",
			"dcim.device",
			"virtualization.virtualmachine",
		},
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateCable - Connect two device interfaces.
func (client *Client) CreateCable(ctx context.Context, interfaceAID string, interfaceBID string, statusID string, label string) (*Cable, error) {
	var created Cable
	err := client.create(ctx, EndpointCables, map[string]interface{}{
		"termination_a_type": "dcim.interface",
		"termination_a_id":   interfaceAID,
		"termination_b_type": "dcim.interface",
		"termination_b_id":   interfaceBID,
		"status":             statusID,
		"label":              label,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateClusterType - Create a cluster type.
func (client *Client) CreateClusterType(ctx context.Context, name string) (*ClusterType, error) {
	var created ClusterType
	if err := client.create(ctx, EndpointClusterTypes, map[string]interface{}{"name": name}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateCluster - Create a cluster.
func (client *Client) CreateCluster(ctx context.Context, name string, clusterTypeID string) (*Cluster, error) {
	var created Cluster
	err := client.create(ctx, EndpointClusters, map[string]interface{}{
		"name":         name,
		"cluster_type": clusterTypeID,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateVirtualMachine - Create a VM with the given fields (name, cluster, status, resources).
func (client *Client) CreateVirtualMachine(ctx context.Context, fields map[string]interface{}) (*VirtualMachine, error) {
	var created VirtualMachine
	if err := client.create(ctx, EndpointVirtualMachines, fields, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateVirtualMachine - Patch fields of a VM.
func (client *Client) UpdateVirtualMachine(ctx context.Context, id string, fields map[string]interface{}) error {
	return client.update(ctx, EndpointVirtualMachines, id, fields)
}

// CreateVMInterface - Create a VM interface.
func (client *Client) CreateVMInterface(ctx context.Context, vmID string, name string, statusID string, macAddress string) (*VMInterface, error) {
	payload := map[string]interface{}{
		"virtual_machine": vmID,
		"name":            name,
		"status":          statusID,
		"enabled":         true,
	}
	if macAddress != "" {
		payload["mac_address"] = macAddress
	}
	var created VMInterface
	if err := client.create(ctx, EndpointVMInterfaces, payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}
