package nautobot

import (
	"context"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// Endpoints.
const (
	EndpointStatuses        = "extras/statuses/"
	EndpointTags            = "extras/tags/"
	EndpointPrefixes        = "ipam/prefixes/"
	EndpointIPAddresses     = "ipam/ip-addresses/"
	EndpointIPToInterface   = "ipam/ip-address-to-interface/"
	EndpointDevices         = "dcim/devices/"
	EndpointInterfaces      = "dcim/interfaces/"
	EndpointCables          = "dcim/cables/"
	EndpointClusterTypes    = "virtualization/cluster-types/"
	EndpointClusters        = "virtualization/clusters/"
	EndpointVirtualMachines = "virtualization/virtual-machines/"
	EndpointVMInterfaces    = "virtualization/interfaces/"
)

// findOne - Exact-match lookup returning ErrNotFound for no match.
// Filters on an object that only exists in dry-run mode can not match anything and are not sent.
func findOne[T any](ctx context.Context, client *Client, endpoint string, query url.Values) (*T, error) {
	for _, values := range query {
		for _, value := range values {
			if value == DryRunID {
				return nil, fmt.Errorf("%v %v: %w", endpoint, query.Encode(), ErrNotFound)
			}
		}
	}
	query.Set("limit", "2")
	var page Page[T]
	if err := client.get(ctx, endpoint, query, &page); err != nil {
		return nil, err
	}
	query.Del("limit")
	if len(page.Results) == 0 {
		return nil, fmt.Errorf("%v %v: %w", endpoint, query.Encode(), ErrNotFound)
	}
	if page.Count > 1 {
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"query":    query.Encode(),
			"count":    page.Count,
		}).Warn("Exact-match lookup returned several objects, using the first")
	}
	return &page.Results[0], nil
}

// FindStatus - Status by name.
func (client *Client) FindStatus(ctx context.Context, name string) (*Status, error) {
	return findOne[Status](ctx, client, EndpointStatuses, url.Values{"name": {name}})
}

// FindTag - Tag by name.
func (client *Client) FindTag(ctx context.Context, name string) (*Tag, error) {
	return findOne[Tag](ctx, client, EndpointTags, url.Values{"name": {name}})
}

// FindPrefix - Prefix by exact CIDR.
func (client *Client) FindPrefix(ctx context.Context, prefix string) (*Prefix, error) {
	return findOne[Prefix](ctx, client, EndpointPrefixes, url.Values{"prefix": {prefix}})
}

// FindIPAddress - Address by host IP, whatever its prefix length.
func (client *Client) FindIPAddress(ctx context.Context, address string) (*IPAddress, error) {
	return findOne[IPAddress](ctx, client, EndpointIPAddresses, url.Values{"address": {common.HostIP(address)}})
}

// FindDevice - Device by name.
func (client *Client) FindDevice(ctx context.Context, name string) (*Device, error) {
	return findOne[Device](ctx, client, EndpointDevices, url.Values{"name": {name}})
}

// FindInterface - Interface by device and name.
func (client *Client) FindInterface(ctx context.Context, deviceID string, name string) (*Interface, error) {
	return findOne[Interface](ctx, client, EndpointInterfaces, url.Values{"device": {deviceID}, "name": {name}})
}

// IsLinked - If the address is assigned to the device interface.
func (client *Client) IsLinked(ctx context.Context, ipAddressID string, interfaceID string) (bool, error) {
	return client.isLinked(ctx, url.Values{"ip_address": {ipAddressID}, "interface": {interfaceID}})
}

// IsLinkedToVMInterface - If the address is assigned to the VM interface.
func (client *Client) IsLinkedToVMInterface(ctx context.Context, ipAddressID string, vmInterfaceID string) (bool, error) {
	return client.isLinked(ctx, url.Values{"ip_address": {ipAddressID}, "vm_interface": {vmInterfaceID}})
}

func (client *Client) isLinked(ctx context.Context, query url.Values) (bool, error) {
	_, err := findOne[IPAddressToInterface](ctx, client, EndpointIPToInterface, query)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// FindClusterType - Cluster type by name.
func (client *Client) FindClusterType(ctx context.Context, name string) (*ClusterType, error) {
	return findOne[ClusterType](ctx, client, EndpointClusterTypes, url.Values{"name": {name}})
}

// FindCluster - Cluster by name.
func (client *Client) FindCluster(ctx context.Context, name string) (*Cluster, error) {
	return findOne[Cluster](ctx, client, EndpointClusters, url.Values{"name": {name}})
}

// FindVirtualMachine - VM by name within a cluster.
func (client *Client) FindVirtualMachine(ctx context.Context, name string, clusterID string) (*VirtualMachine, error) {
	return findOne[VirtualMachine](ctx, client, EndpointVirtualMachines, url.Values{"name": {name}, "cluster": {clusterID}})
}

// ListVirtualMachines - All VMs of a cluster.
func (client *Client) ListVirtualMachines(ctx context.Context, clusterID string) ([]VirtualMachine, error) {
	if clusterID == DryRunID {
		return nil, nil
	}
	return ListAll[VirtualMachine](ctx, client, EndpointVirtualMachines, url.Values{"cluster": {clusterID}})
}

// FindVMInterface - VM interface by VM and name.
func (client *Client) FindVMInterface(ctx context.Context, vmID string, name string) (*VMInterface, error) {
	return findOne[VMInterface](ctx, client, EndpointVMInterfaces, url.Values{"virtual_machine": {vmID}, "name": {name}})
}
