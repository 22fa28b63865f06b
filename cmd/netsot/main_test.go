package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/nautobot"
	"dev.hon.one/netsot/nautobot/nautobottest"
)

const testMappings = `
compute:
  - device: wow-prox1
    addresses:
      - address: 172.16.100.11/24
        interface: eno1
  - device: wow-prox9
    addresses:
      - address: 172.16.100.19/24
        interface: eno1
`

func writeFile(t *testing.T, dir string, name string, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute - Run the root command against the fake inventory.
func execute(t *testing.T, fake *nautobottest.Server, args ...string) error {
	dir := t.TempDir()
	mappings := writeFile(t, dir, "mappings.yaml", testMappings)
	config := writeFile(t, dir, "config.json", fmt.Sprintf(`{
		"inventory": {"url": %q, "prefixes": ["172.16.100.0/24"]},
		"mappings_path": %q
	}`, fake.APIURL(), mappings))

	rootCmd.SetArgs(append(args, "--config", config))
	return rootCmd.ExecuteContext(context.Background())
}

func inventoryFixture(t *testing.T) *nautobottest.Server {
	fake := nautobottest.NewServer(t)
	fake.AddStatus("Active")
	fake.AddPrefix("172.16.100.0/24")
	device := fake.AddDevice("wow-prox1")
	fake.AddInterface(device, "eno1")
	return fake
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailures, exitCode(fmt.Errorf("%w: 2", errFailuresCounted)))
	assert.Equal(t, exitFatal, exitCode(common.ErrMissingCredential))
	assert.Equal(t, exitFatal, exitCode(fmt.Errorf("inventory: %w", nautobot.ErrUnauthorized)))
}

func TestAssignIPs(t *testing.T) {
	fake := inventoryFixture(t)
	t.Setenv(common.EnvInventoryToken, nautobottest.Token)

	err := execute(t, fake, "assign-ips", "--dry-run=false")

	require.True(t, errors.Is(err, errFailuresCounted), "missing device should be counted: %v", err)
	assert.Equal(t, exitFailures, exitCode(err))
	addresses := fake.Objects(nautobot.EndpointIPAddresses)
	require.Len(t, addresses, 1)
	assert.Equal(t, "172.16.100.11/24", addresses[0]["address"])
	assert.Len(t, fake.Objects(nautobot.EndpointIPToInterface), 1)
}

func TestAssignIPs_DryRun(t *testing.T) {
	fake := inventoryFixture(t)
	t.Setenv(common.EnvInventoryToken, nautobottest.Token)
	before := fake.Snapshot()

	err := execute(t, fake, "assign-ips", "--dry-run")

	assert.ErrorIs(t, err, errFailuresCounted)
	assert.Equal(t, before, fake.Snapshot())
}

func TestAssignIPs_MissingToken(t *testing.T) {
	fake := inventoryFixture(t)
	t.Setenv(common.EnvInventoryToken, "")

	err := execute(t, fake, "assign-ips", "--dry-run=false")

	assert.ErrorIs(t, err, common.ErrMissingCredential)
	assert.Zero(t, fake.Requests())
}

func TestAssignIPs_RejectedToken(t *testing.T) {
	fake := inventoryFixture(t)
	t.Setenv(common.EnvInventoryToken, "wrong")

	err := execute(t, fake, "assign-ips", "--dry-run=false")

	assert.ErrorIs(t, err, nautobot.ErrUnauthorized)
	assert.Equal(t, exitFatal, exitCode(err))
	assert.Zero(t, fake.Writes())
}

func TestPlanDiscovered(t *testing.T) {
	tables := &common.MappingTables{Compute: []common.DeviceMapping{{
		Device:    "wow-prox1",
		Addresses: []common.AddressMapping{{Address: "172.16.100.11/24", Interface: "eno1"}},
	}}}
	hosts := []common.DiscoveredHost{
		{MAC: "AA:BB:CC:DD:EE:01", IP: "172.16.100.11", Source: common.SourceLeaseTable},
		{MAC: "AA:BB:CC:DD:EE:02", IP: "172.16.100.50", Hostname: "laptop", Source: common.SourceLeaseTable},
	}

	entries := planDiscovered(tables, hosts, []string{"discovered"})

	require.Len(t, entries, 2)
	assert.Equal(t, "wow-prox1", entries[0].Device)
	assert.Equal(t, "eno1", entries[0].Interface)
	assert.Equal(t, "172.16.100.50", entries[1].Address)
	assert.False(t, entries[1].HasTarget())
	assert.Equal(t, []string{"discovered"}, entries[1].Tags)
}
