// Package hypervisor syncs Proxmox VE nodes and guests into the inventory.
package hypervisor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// ErrUnauthorized - The API token was rejected.
var ErrUnauthorized = errors.New("hypervisor token rejected")

// Guest kinds.
const (
	KindVM        = "qemu"
	KindContainer = "lxc"
)

// Node - Cluster node.
type Node struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

// NodeInterface - Host network interface of a node.
type NodeInterface struct {
	Iface string `json:"iface"`
	Type  string `json:"type"`
	CIDR  string `json:"cidr"`
}

// VMID - Guest ID. The API returns it as a number for VMs and as a string for some container listings.
type VMID string

// UnmarshalJSON - Accept both forms.
func (id *VMID) UnmarshalJSON(data []byte) error {
	var number json.Number
	if err := json.Unmarshal(data, &number); err == nil {
		*id = VMID(number.String())
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("vmid: %w", err)
	}
	*id = VMID(text)
	return nil
}

// Guest - VM or container as listed for a node.
type Guest struct {
	VMID    VMID    `json:"vmid"`
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	Type    string  `json:"type"`
	CPUs    float64 `json:"cpus"`
	MaxMem  int64   `json:"maxmem"`
	MaxDisk int64   `json:"maxdisk"`

	Kind string `json:"-"` // KindVM or KindContainer
	Node string `json:"-"`
}

// Running - If the guest is running.
func (guest Guest) Running() bool {
	return guest.Status == "running"
}

// GuestInterface - Network interface reported from inside a guest.
type GuestInterface struct {
	Name       string
	MACAddress string   // Canonical form, empty if unknown
	Addresses  []string // CIDR notation
}

// Client - Proxmox VE REST API client.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// NewClient - Create a client for the API at the configured URL.
func NewClient(config common.HypervisorConfig) (*Client, error) {
	if config.URL == "" || config.User == "" || config.Token == "" {
		return nil, fmt.Errorf("%w: %v, %v and %v must be set", common.ErrMissingCredential,
			common.EnvProxmoxURL, common.EnvProxmoxUser, common.EnvProxmoxToken)
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("%w: malformed hypervisor URL: %v", common.ErrInvalidConfig, err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL:    strings.TrimRight(config.URL, "/") + "/api2/json",
		authHeader: fmt.Sprintf("PVEAPIToken=%v=%v", config.User, config.Token),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   common.Seconds(config.TimeoutSeconds),
		},
	}, nil
}

// get - GET a path and decode the "data" member of the response.
func (client *Client) get(ctx context.Context, path string, data interface{}) error {
	target := client.baseURL + path
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", client.authHeader)
	request.Header.Set("Accept", "application/json")

	log.WithFields(log.Fields{
		"url": target,
	}).Trace("Hypervisor request")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("GET %v: %w", target, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read %v: %w", target, err)
	}
	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: GET %v: status %v", ErrUnauthorized, target, response.StatusCode)
	case response.StatusCode < 200 || response.StatusCode > 299:
		return fmt.Errorf("GET %v: status %v: %v", target, response.StatusCode, strings.TrimSpace(string(body)))
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode %v: %w", target, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, data); err != nil {
		return fmt.Errorf("decode %v: %w", target, err)
	}
	return nil
}

// Nodes - All cluster nodes.
func (client *Client) Nodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := client.get(ctx, "/nodes", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// NodeInterfaces - Host network interfaces of a node.
func (client *Client) NodeInterfaces(ctx context.Context, node string) ([]NodeInterface, error) {
	var interfaces []NodeInterface
	if err := client.get(ctx, "/nodes/"+url.PathEscape(node)+"/network", &interfaces); err != nil {
		return nil, err
	}
	return interfaces, nil
}

// Guests - VMs (KindVM) or containers (KindContainer) of a node.
func (client *Client) Guests(ctx context.Context, node string, kind string) ([]Guest, error) {
	var guests []Guest
	if err := client.get(ctx, "/nodes/"+url.PathEscape(node)+"/"+kind, &guests); err != nil {
		return nil, err
	}
	for i := range guests {
		guests[i].Kind = kind
		guests[i].Node = node
		if guests[i].Type == KindContainer {
			guests[i].Kind = KindContainer
		}
	}
	return guests, nil
}

type agentInterface struct {
	Name            string `json:"name"`
	HardwareAddress string `json:"hardware-address"`
	IPAddresses     []struct {
		IPAddress     string `json:"ip-address"`
		IPAddressType string `json:"ip-address-type"`
		Prefix        int    `json:"prefix"`
	} `json:"ip-addresses"`
}

type containerInterface struct {
	Name   string `json:"name"`
	HWAddr string `json:"hwaddr"`
	Inet   string `json:"inet"`
	Inet6  string `json:"inet6"`
}

// GuestInterfaces - Interfaces and addresses seen inside a guest, through the guest agent for VMs.
// Loopback interfaces and link-local addresses are left out.
func (client *Client) GuestInterfaces(ctx context.Context, guest Guest) ([]GuestInterface, error) {
	base := "/nodes/" + url.PathEscape(guest.Node) + "/" + guest.Kind + "/" + url.PathEscape(string(guest.VMID))
	var result []GuestInterface

	if guest.Kind == KindContainer {
		var interfaces []containerInterface
		if err := client.get(ctx, base+"/interfaces", &interfaces); err != nil {
			return nil, err
		}
		for _, iface := range interfaces {
			var addresses []string
			for _, address := range []string{iface.Inet, iface.Inet6} {
				if usableAddress(address) {
					addresses = append(addresses, address)
				}
			}
			result = appendGuestInterface(result, iface.Name, iface.HWAddr, addresses)
		}
		return result, nil
	}

	var agent struct {
		Result []agentInterface `json:"result"`
	}
	if err := client.get(ctx, base+"/agent/network-get-interfaces", &agent); err != nil {
		return nil, err
	}
	for _, iface := range agent.Result {
		var addresses []string
		for _, address := range iface.IPAddresses {
			cidr := address.IPAddress + "/" + strconv.Itoa(address.Prefix)
			if usableAddress(cidr) {
				addresses = append(addresses, cidr)
			}
		}
		result = appendGuestInterface(result, iface.Name, iface.HardwareAddress, addresses)
	}
	return result, nil
}

func appendGuestInterface(result []GuestInterface, name string, mac string, addresses []string) []GuestInterface {
	if name == "" || name == "lo" {
		return result
	}
	canonical, _ := common.NormalizeMAC(mac)
	return append(result, GuestInterface{Name: name, MACAddress: canonical, Addresses: addresses})
}

func usableAddress(cidr string) bool {
	if cidr == "" {
		return false
	}
	ip := strings.SplitN(cidr, "/", 2)[0]
	parsed := net.ParseIP(ip)
	return parsed != nil && !parsed.IsLoopback() && !parsed.IsLinkLocalUnicast()
}
