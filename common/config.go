package common

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/util"
)

// DefaultConfigPath - Path to config file if none was given.
const DefaultConfigPath = "config.json"

// ErrMissingCredential - A required token or credential was not provided.
var ErrMissingCredential = errors.New("missing credential")

// ErrInvalidConfig - The config file has invalid values.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables holding secrets.
const (
	EnvInventoryToken     = "NAUTOBOT_API_TOKEN"
	EnvProxmoxURL         = "PROXMOX_URL"
	EnvProxmoxUser        = "PROXMOX_USER"
	EnvProxmoxToken       = "PROXMOX_TOKEN"
	EnvTechnitiumToken    = "TECHNITIUM_API_TOKEN"
	EnvInfluxDBToken      = "INFLUXDB_TOKEN"
	envProxmoxURLLegacy   = "NAUTOBOT_PROXMOX_URL"
	envProxmoxUserLegacy  = "NAUTOBOT_PROXMOX_USER"
	envProxmoxTokenLegacy = "NAUTOBOT_PROXMOX_TOKEN"
)

// InventoryConfig - Inventory (Nautobot) REST API.
type InventoryConfig struct {
	URL                string   `json:"url"`
	Token              string   `json:"-"`
	TimeoutSeconds     float64  `json:"timeout_seconds"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify"`
	PageLimit          int      `json:"page_limit"`
	Prefixes           []string `json:"prefixes"`
	Status             string   `json:"status"`
	Tags               []string `json:"tags"` // Added to discovered addresses
}

// HypervisorConfig - Hypervisor (Proxmox VE) REST API and sync options.
type HypervisorConfig struct {
	URL                string  `json:"url"`
	User               string  `json:"-"`
	Token              string  `json:"-"`
	TimeoutSeconds     float64 `json:"timeout_seconds"`
	InsecureSkipVerify bool    `json:"insecure_skip_verify"`
	Cluster            string  `json:"cluster"`
	ClusterType        string  `json:"cluster_type"`
	StaleTag           string  `json:"stale_tag"`
	StaleTagColor      string  `json:"stale_tag_color"`
	IncludeContainers  bool    `json:"include_containers"`
	MarkStale          bool    `json:"mark_stale"`
}

// DNSConfig - DNS server (Technitium) API and import options.
type DNSConfig struct {
	APIURL         string   `json:"api_url"`
	Token          string   `json:"-"`
	TimeoutSeconds float64  `json:"timeout_seconds"`
	Catalog        string   `json:"catalog"`
	Zones          []string `json:"zones"`
	HostsFile      string   `json:"hosts_file"`
}

// MetricsConfig - Prometheus Pushgateway. Disabled if the URL is empty.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url"`
}

// InfluxDBConfig - InfluxDB run history. Disabled if the URL is empty.
type InfluxDBConfig struct {
	URL    string `json:"url"`
	Token  string `json:"-"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Config - Run configuration, loaded once at startup and passed to every component.
type Config struct {
	Inventory    InventoryConfig  `json:"inventory"`
	Firewall     Firewall         `json:"firewall"`
	Switches     []Switch         `json:"switches"`
	MappingsPath string           `json:"mappings_path"`
	Hypervisor   HypervisorConfig `json:"hypervisor"`
	DNS          DNSConfig        `json:"dns"`
	Metrics      MetricsConfig    `json:"metrics"`
	InfluxDB     InfluxDBConfig   `json:"influxdb"`
}

// DefaultConfig - Config with defaults for all optional values.
func DefaultConfig() *Config {
	return &Config{
		Inventory: InventoryConfig{
			TimeoutSeconds: 10,
			PageLimit:      100,
			Status:         "Active",
		},
		Firewall: Firewall{
			Name:           "pfsense",
			Port:           1815,
			LeaseFile:      "/var/dhcpd/var/db/dhcpd.leases",
			TimeoutSeconds: 10,
		},
		MappingsPath: "mappings.yaml",
		Hypervisor: HypervisorConfig{
			TimeoutSeconds:    10,
			Cluster:           "proxmox",
			ClusterType:       "Proxmox VE",
			StaleTag:          "orphaned-from-proxmox",
			StaleTagColor:     "ff0000",
			IncludeContainers: true,
			MarkStale:         true,
		},
		DNS: DNSConfig{
			TimeoutSeconds: 10,
			HostsFile:      "dns.list",
		},
		InfluxDB: InfluxDBConfig{
			Bucket: AppName,
		},
	}
}

// LoadConfig - Load configuration file on top of the defaults and read secrets from the environment.
// An empty path means defaults only.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		log.WithFields(log.Fields{
			"config_path": path,
		}).Info("Loading config")
		if err := util.ParseJSONFile(config, path); err != nil {
			return nil, err
		}
	}
	config.ApplyEnvironment(os.LookupEnv)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnvironment - Read secrets using the given lookup function.
func (config *Config) ApplyEnvironment(lookup func(string) (string, bool)) {
	get := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := lookup(key); ok && value != "" {
				return value
			}
		}
		return ""
	}
	config.Inventory.Token = get(EnvInventoryToken)
	if url := get(EnvProxmoxURL, envProxmoxURLLegacy); url != "" {
		config.Hypervisor.URL = url
	}
	config.Hypervisor.User = get(EnvProxmoxUser, envProxmoxUserLegacy)
	config.Hypervisor.Token = get(EnvProxmoxToken, envProxmoxTokenLegacy)
	config.DNS.Token = get(EnvTechnitiumToken)
	config.InfluxDB.Token = get(EnvInfluxDBToken)
}

// Validate - Check values that would otherwise fail later.
func (config *Config) Validate() error {
	if config.Inventory.PageLimit <= 0 {
		return fmt.Errorf("%w: non-positive page limit", ErrInvalidConfig)
	}
	for _, prefix := range config.Inventory.Prefixes {
		if _, _, err := net.ParseCIDR(prefix); err != nil {
			return fmt.Errorf("%w: malformed prefix %q", ErrInvalidConfig, prefix)
		}
	}
	switchNames := make(map[string]bool)
	for _, sw := range config.Switches {
		if sw.Name == "" || sw.Address == "" {
			return fmt.Errorf("%w: switch missing name or address", ErrInvalidConfig)
		}
		if switchNames[sw.Name] || sw.Name == config.Firewall.Name {
			return fmt.Errorf("%w: duplicate source name %q", ErrInvalidConfig, sw.Name)
		}
		switchNames[sw.Name] = true
	}
	return nil
}

// RequireInventory - Check that the inventory API can be used.
func (config *Config) RequireInventory() error {
	if config.Inventory.URL == "" {
		return fmt.Errorf("%w: inventory URL not configured", ErrInvalidConfig)
	}
	if config.Inventory.Token == "" {
		return fmt.Errorf("%w: %v not set", ErrMissingCredential, EnvInventoryToken)
	}
	return nil
}

// RequireHypervisor - Check that the hypervisor API can be used.
func (config *Config) RequireHypervisor() error {
	if config.Hypervisor.URL == "" {
		return fmt.Errorf("%w: %v not set", ErrMissingCredential, EnvProxmoxURL)
	}
	if config.Hypervisor.User == "" || config.Hypervisor.Token == "" {
		return fmt.Errorf("%w: %v and %v must be set", ErrMissingCredential, EnvProxmoxUser, EnvProxmoxToken)
	}
	return nil
}

// RequireDNS - Check that the DNS API can be used.
func (config *Config) RequireDNS() error {
	if config.DNS.APIURL == "" {
		return fmt.Errorf("%w: DNS API URL not configured", ErrInvalidConfig)
	}
	if config.DNS.Token == "" {
		return fmt.Errorf("%w: %v not set", ErrMissingCredential, EnvTechnitiumToken)
	}
	return nil
}

// RequireFirewall - Check that the firewall can be reached over SSH.
func (config *Config) RequireFirewall() error {
	if config.Firewall.Address == "" || config.Firewall.Username == "" {
		return fmt.Errorf("%w: firewall address or username not configured", ErrInvalidConfig)
	}
	if config.Firewall.PrivateKeyPath == "" && config.Firewall.Password == "" {
		return fmt.Errorf("%w: firewall SSH key not configured", ErrMissingCredential)
	}
	return nil
}

// Seconds - Convert a config value in seconds to a duration, with a default for non-positive values.
func Seconds(value float64) time.Duration {
	if value <= 0 {
		return DefaultTimeout
	}
	return time.Duration(value * float64(time.Second))
}
