package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint(1815), config.Firewall.Port)
	assert.Equal(t, "/var/dhcpd/var/db/dhcpd.leases", config.Firewall.LeaseFile)
	assert.Equal(t, "Active", config.Inventory.Status)
	assert.Equal(t, "orphaned-from-proxmox", config.Hypervisor.StaleTag)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"inventory": {"url": "https://ipam.example/api", "prefixes": ["172.16.100.0/24"]},
		"switches": [{"name": "cisco", "address": "172.16.100.40", "community": "public"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://ipam.example/api", config.Inventory.URL)
	assert.Equal(t, 100, config.Inventory.PageLimit)
	require.Len(t, config.Switches, 1)
	assert.Equal(t, "cisco", config.Switches[0].Name)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"bad prefix":       func(c *Config) { c.Inventory.Prefixes = []string{"172.16.100.0"} },
		"zero page limit":  func(c *Config) { c.Inventory.PageLimit = 0 },
		"switch no name":   func(c *Config) { c.Switches = []Switch{{Address: "10.0.0.2"}} },
		"duplicate switch": func(c *Config) { c.Switches = []Switch{{Name: "a", Address: "x"}, {Name: "a", Address: "y"}} },
		"firewall name":    func(c *Config) { c.Switches = []Switch{{Name: "pfsense", Address: "x"}} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(config)
			assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}
}

func TestRequireInventory_MissingToken(t *testing.T) {
	config := DefaultConfig()
	config.Inventory.URL = "https://ipam.example/api"
	config.ApplyEnvironment(lookupFrom(nil))

	assert.ErrorIs(t, config.RequireInventory(), ErrMissingCredential)

	config.ApplyEnvironment(lookupFrom(map[string]string{EnvInventoryToken: "secret"}))
	assert.NoError(t, config.RequireInventory())
}

func TestApplyEnvironment_HypervisorFallback(t *testing.T) {
	config := DefaultConfig()
	config.ApplyEnvironment(lookupFrom(map[string]string{
		"NAUTOBOT_PROXMOX_URL":  "https://pve.example:8006",
		"NAUTOBOT_PROXMOX_USER": "sync@pve!nautobot",
		EnvProxmoxToken:         "uuid",
	}))

	require.NoError(t, config.RequireHypervisor())
	assert.Equal(t, "https://pve.example:8006", config.Hypervisor.URL)
	assert.Equal(t, "sync@pve!nautobot", config.Hypervisor.User)
	assert.Equal(t, "uuid", config.Hypervisor.Token)
}

func TestRequireDNSAndFirewall(t *testing.T) {
	config := DefaultConfig()
	config.DNS.APIURL = "http://dns.example:5380/api"
	assert.ErrorIs(t, config.RequireDNS(), ErrMissingCredential)

	config.Firewall.Address = "10.1.1.1"
	config.Firewall.Username = "admin"
	assert.ErrorIs(t, config.RequireFirewall(), ErrMissingCredential)
	config.Firewall.PrivateKeyPath = "/root/.ssh/id_ed25519"
	assert.NoError(t, config.RequireFirewall())
}
