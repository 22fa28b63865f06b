package hypervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/nautobot"
	"dev.hon.one/netsot/nautobot/nautobottest"
)

const (
	testUser  = "sync@pve!netsot"
	testToken = "secret"
	gib       = 1024 * 1024 * 1024
)

// newProxmoxServer - Serve the "data" member of each path, 500 for unknown paths.
func newProxmoxServer(t *testing.T, data map[string]interface{}) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "PVEAPIToken="+testUser+"="+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, found := data[strings.TrimPrefix(r.URL.Path, "/api2/json")]
		if !found {
			http.Error(w, `{"data":null}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": body})
	}))
	t.Cleanup(server.Close)
	return server
}

func clusterData() map[string]interface{} {
	return map[string]interface{}{
		"/nodes": []map[string]interface{}{{"node": "pve1", "status": "online"}},
		"/nodes/pve1/network": []map[string]interface{}{
			{"iface": "vmbr0", "type": "bridge", "cidr": "172.16.110.10/24"},
			{"iface": "vmbr0.20", "type": "vlan"},
			{"iface": "eno1", "type": "eth"},
		},
		"/nodes/pve1/qemu": []map[string]interface{}{
			{"vmid": 100, "name": "web", "status": "running", "cpus": 2, "maxmem": 2 * gib, "maxdisk": 32 * gib},
			{"vmid": 101, "name": "db", "status": "running", "cpus": 4, "maxmem": 8 * gib, "maxdisk": 64 * gib},
			{"vmid": 102, "name": "", "status": "stopped"},
		},
		"/nodes/pve1/lxc": []map[string]interface{}{
			{"vmid": "200", "name": "dns", "status": "running", "type": "lxc", "cpus": 1, "maxmem": gib / 2, "maxdisk": 8 * gib},
		},
		"/nodes/pve1/qemu/100/agent/network-get-interfaces": map[string]interface{}{
			"result": []map[string]interface{}{
				{"name": "lo", "hardware-address": "00:00:00:00:00:00", "ip-addresses": []map[string]interface{}{
					{"ip-address": "127.0.0.1", "ip-address-type": "ipv4", "prefix": 8},
				}},
				{"name": "ens18", "hardware-address": "bc:24:11:00:00:01", "ip-addresses": []map[string]interface{}{
					{"ip-address": "172.16.110.21", "ip-address-type": "ipv4", "prefix": 24},
					{"ip-address": "fe80::be24:11ff:fe00:1", "ip-address-type": "ipv6", "prefix": 64},
				}},
			},
		},
		// No guest agent for 101
		"/nodes/pve1/lxc/200/interfaces": []map[string]interface{}{
			{"name": "lo", "hwaddr": "00:00:00:00:00:00", "inet": "127.0.0.1/8"},
			{"name": "eth0", "hwaddr": "bc:24:11:00:00:02", "inet": "172.16.110.53/24"},
		},
	}
}

type fixture struct {
	fake       *nautobottest.Server
	proxmox    *httptest.Server
	activeID   string
	clusterID  string
	staleTagID string
	oldID      string
	goneID     string
}

func newFixture(t *testing.T) *fixture {
	fake := nautobottest.NewServer(t)
	f := &fixture{
		fake:     fake,
		proxmox:  newProxmoxServer(t, clusterData()),
		activeID: fake.AddStatus("Active"),
	}
	fake.AddStatus("Offline")
	clusterTypeID := fake.Add(nautobot.EndpointClusterTypes, nautobottest.Object{"name": "Proxmox VE"})
	f.clusterID = fake.Add(nautobot.EndpointClusters, nautobottest.Object{"name": "proxmox", "cluster_type": clusterTypeID})
	f.staleTagID = fake.Add(nautobot.EndpointTags, nautobottest.Object{"name": "orphaned-from-proxmox", "color": "ff0000"})
	f.oldID = fake.Add(nautobot.EndpointVirtualMachines, nautobottest.Object{"name": "old", "cluster": f.clusterID})
	f.goneID = fake.Add(nautobot.EndpointVirtualMachines, nautobottest.Object{
		"name":    "gone",
		"cluster": f.clusterID,
		"tags":    []string{f.staleTagID},
	})
	fake.AddDevice("pve1")
	return f
}

func (f *fixture) syncer(t *testing.T, dryRun bool) *Syncer {
	t.Helper()
	config := common.DefaultConfig().Hypervisor
	config.URL = f.proxmox.URL
	config.User = testUser
	config.Token = testToken
	proxmox, err := NewClient(config)
	require.NoError(t, err)
	inventory, err := nautobot.NewClient(common.InventoryConfig{URL: f.fake.APIURL(), Token: nautobottest.Token}, dryRun)
	require.NoError(t, err)
	return NewSyncer(proxmox, inventory, config)
}

func allOptions() Options {
	return Options{IncludeContainers: true, MarkStale: true}
}

func findObject(objects []nautobottest.Object, key string, value string) nautobottest.Object {
	for _, object := range objects {
		if object[key] == value {
			return object
		}
	}
	return nil
}

func TestNewClient_MissingCredential(t *testing.T) {
	_, err := NewClient(common.HypervisorConfig{URL: "https://pve.example:8006"})
	assert.ErrorIs(t, err, common.ErrMissingCredential)
}

func TestVMID_Unmarshal(t *testing.T) {
	var guests []Guest
	require.NoError(t, json.Unmarshal([]byte(`[{"vmid": 100}, {"vmid": "200"}]`), &guests))
	assert.Equal(t, VMID("100"), guests[0].VMID)
	assert.Equal(t, VMID("200"), guests[1].VMID)
}

func TestSync(t *testing.T) {
	f := newFixture(t)

	report, err := f.syncer(t, false).Sync(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Nodes)
	assert.Equal(t, 3, report.Guests)
	assert.Equal(t, 1, report.AgentFailures)
	assert.Equal(t, []string{"old"}, report.Stale)
	assert.Equal(t, 0, report.Failed)

	vms := f.fake.Objects(nautobot.EndpointVirtualMachines)
	web := findObject(vms, "name", "web")
	require.NotNil(t, web)
	assert.EqualValues(t, 2, web["vcpus"])
	assert.EqualValues(t, 2048, web["memory"])
	assert.EqualValues(t, 32, web["disk"])
	assert.Equal(t, map[string]interface{}{"id": f.activeID}, web["status"])
	assert.NotNil(t, findObject(vms, "name", "db"))
	assert.NotNil(t, findObject(vms, "name", "dns"))

	interfaces := f.fake.Objects(nautobot.EndpointInterfaces)
	require.Len(t, interfaces, 2)
	assert.Equal(t, "bridge", findObject(interfaces, "name", "vmbr0")["type"])
	assert.Equal(t, "virtual", findObject(interfaces, "name", "vmbr0.20")["type"])

	vmInterfaces := f.fake.Objects(nautobot.EndpointVMInterfaces)
	require.Len(t, vmInterfaces, 2)
	assert.Equal(t, "BC:24:11:00:00:01", findObject(vmInterfaces, "name", "ens18")["mac_address"])

	addresses := f.fake.Objects(nautobot.EndpointIPAddresses)
	assert.Len(t, addresses, 3)
	assert.NotNil(t, findObject(addresses, "address", "172.16.110.10/24"))
	assert.NotNil(t, findObject(addresses, "address", "172.16.110.21/24"))
	assert.NotNil(t, findObject(addresses, "address", "172.16.110.53/24"))
	assert.Len(t, f.fake.Objects(nautobot.EndpointIPToInterface), 3)

	old := findObject(vms, "name", "old")
	assert.Equal(t, []interface{}{map[string]interface{}{"id": f.staleTagID}}, old["tags"])
}

func TestSync_SecondRunChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.syncer(t, false).Sync(ctx, allOptions())
	require.NoError(t, err)
	writes := f.fake.Writes()

	report, err := f.syncer(t, false).Sync(ctx, allOptions())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Linked)
	assert.Empty(t, report.Stale)
	assert.Equal(t, writes, f.fake.Writes())
}

func TestSync_StoppedGuestGoesOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.syncer(t, false).Sync(ctx, allOptions())
	require.NoError(t, err)

	data := clusterData()
	data["/nodes/pve1/qemu"] = []map[string]interface{}{
		{"vmid": 100, "name": "web", "status": "stopped", "cpus": 2, "maxmem": 2 * gib, "maxdisk": 32 * gib},
	}
	f.proxmox = newProxmoxServer(t, data)
	report, err := f.syncer(t, false).Sync(ctx, Options{VMIDFilter: "100"})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	web := findObject(f.fake.Objects(nautobot.EndpointVirtualMachines), "name", "web")
	assert.NotEqual(t, map[string]interface{}{"id": f.activeID}, web["status"])
}

func TestSync_DryRunMatchesCommit(t *testing.T) {
	dry := newFixture(t)
	before := dry.fake.Snapshot()
	dryReport, err := dry.syncer(t, true).Sync(context.Background(), allOptions())
	require.NoError(t, err)
	assert.Equal(t, before, dry.fake.Snapshot())
	assert.Equal(t, 0, dry.fake.Writes())

	commit := newFixture(t)
	commitReport, err := commit.syncer(t, false).Sync(context.Background(), allOptions())
	require.NoError(t, err)

	assert.Equal(t, commitReport, dryReport)
}

// sharedBridgeData - Both VMs report the same docker bridge address.
func sharedBridgeData() map[string]interface{} {
	docker := map[string]interface{}{"name": "docker0", "hardware-address": "02:42:00:00:00:01", "ip-addresses": []map[string]interface{}{
		{"ip-address": "172.17.0.1", "ip-address-type": "ipv4", "prefix": 16},
	}}
	data := clusterData()
	data["/nodes/pve1/qemu/100/agent/network-get-interfaces"] = map[string]interface{}{
		"result": []map[string]interface{}{docker},
	}
	data["/nodes/pve1/qemu/101/agent/network-get-interfaces"] = map[string]interface{}{
		"result": []map[string]interface{}{docker},
	}
	return data
}

func TestSync_SharedGuestAddressDryRunMatchesCommit(t *testing.T) {
	commit := newFixture(t)
	commit.proxmox = newProxmoxServer(t, sharedBridgeData())
	commitReport, err := commit.syncer(t, false).Sync(context.Background(), allOptions())
	require.NoError(t, err)

	var docker []nautobottest.Object
	for _, address := range commit.fake.Objects(nautobot.EndpointIPAddresses) {
		if address["address"] == "172.17.0.1/16" {
			docker = append(docker, address)
		}
	}
	assert.Len(t, docker, 1)

	dry := newFixture(t)
	dry.proxmox = newProxmoxServer(t, sharedBridgeData())
	before := dry.fake.Snapshot()
	dryReport, err := dry.syncer(t, true).Sync(context.Background(), allOptions())
	require.NoError(t, err)
	assert.Equal(t, before, dry.fake.Snapshot())

	assert.Equal(t, commitReport, dryReport)
	assert.Zero(t, dryReport.AgentFailures)
}

func TestSync_FilterSkipsStaleMarking(t *testing.T) {
	f := newFixture(t)

	report, err := f.syncer(t, false).Sync(context.Background(), Options{NodeFilter: "pve2", MarkStale: true})

	require.NoError(t, err)
	assert.Equal(t, 0, report.Nodes)
	assert.Empty(t, report.Stale)
	old := findObject(f.fake.Objects(nautobot.EndpointVirtualMachines), "name", "old")
	assert.Nil(t, old["tags"])
}

func TestSync_WithoutContainers(t *testing.T) {
	f := newFixture(t)

	report, err := f.syncer(t, false).Sync(context.Background(), Options{MarkStale: false})

	require.NoError(t, err)
	assert.Equal(t, 2, report.Guests)
	assert.Nil(t, findObject(f.fake.Objects(nautobot.EndpointVirtualMachines), "name", "dns"))
}

func TestSync_RejectedToken(t *testing.T) {
	f := newFixture(t)
	syncer := f.syncer(t, false)
	syncer.proxmox.authHeader = "PVEAPIToken=nobody=wrong"

	_, err := syncer.Sync(context.Background(), allOptions())

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, f.fake.Requests())
}
