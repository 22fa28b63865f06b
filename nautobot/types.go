package nautobot

import (
	"encoding/json"
)

// Ref - Reference to another object. Decodes both the nested object form and a bare ID.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON - Accept `"<id>"` as well as `{"id": "<id>", ...}`.
func (ref *Ref) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		ref.ID = id
		return nil
	}
	type plain Ref
	var nested plain
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	*ref = Ref(nested)
	return nil
}

// RefID - ID of an optional reference.
func RefID(ref *Ref) string {
	if ref == nil {
		return ""
	}
	return ref.ID
}

// HasRef - If the reference list contains the ID.
func HasRef(refs []Ref, id string) bool {
	for _, ref := range refs {
		if ref.ID == id {
			return true
		}
	}
	return false
}

// Status - Status object (Active, Offline, Connected, ...).
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tag - Tag object.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Prefix - IP prefix object.
type Prefix struct {
	ID     string `json:"id"`
	Prefix string `json:"prefix"`
}

// IPAddress - IP address object.
type IPAddress struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	DNSName     string `json:"dns_name"`
	Description string `json:"description"`
	Status      *Ref   `json:"status"`
	Parent      *Ref   `json:"parent"`
	Tags        []Ref  `json:"tags"`
}

// Device - Device object.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Interface - Device interface object.
type Interface struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Device      *Ref   `json:"device"`
	Description string `json:"description"`
	Cable       *Ref   `json:"cable"`
}

// IPAddressToInterface - Assignment of an address to a device or VM interface.
type IPAddressToInterface struct {
	ID          string `json:"id"`
	IPAddress   *Ref   `json:"ip_address"`
	Interface   *Ref   `json:"interface"`
	VMInterface *Ref   `json:"vm_interface"`
}

// Cable - Cable object.
type Cable struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status *Ref   `json:"status"`
}

// ClusterType - Virtualization cluster type object.
type ClusterType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Cluster - Virtualization cluster object.
type Cluster struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ClusterType *Ref   `json:"cluster_type"`
}

// VirtualMachine - Virtual machine object.
type VirtualMachine struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Cluster      *Ref                   `json:"cluster"`
	Status       *Ref                   `json:"status"`
	VCPUs        *int                   `json:"vcpus"`
	Memory       *int                   `json:"memory"`
	Disk         *int                   `json:"disk"`
	Tags         []Ref                  `json:"tags"`
	CustomFields map[string]interface{} `json:"custom_fields"`
}

// VMInterface - Virtual machine interface object.
type VMInterface struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	VirtualMachine *Ref   `json:"virtual_machine"`
	MACAddress     string `json:"mac_address"`
}
