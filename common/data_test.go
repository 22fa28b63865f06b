package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMAC(t *testing.T) {
	mac, ok := NormalizeMAC("aa:bb:cc:dd:ee:0f")
	assert.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:0F", mac)

	mac, ok = NormalizeMAC("aa-bb-cc-dd-ee-ff")
	assert.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", mac)

	_, ok = NormalizeMAC("incomplete")
	assert.False(t, ok)
}

func TestAddressHelpers(t *testing.T) {
	assert.Equal(t, "172.16.100.55", HostIP("172.16.100.55/24"))
	assert.Equal(t, "172.16.100.55/32", WithPrefixLength("172.16.100.55"))
	assert.Equal(t, "172.16.100.55/24", WithPrefixLength("172.16.100.55/24"))
	assert.Equal(t, "fd00::1/128", WithPrefixLength("fd00::1"))
	assert.Equal(t, "device-AABBCCDDEEFF", PlaceholderHostname("AA:BB:CC:DD:EE:FF"))
}

func TestHostSet_SortedByIP(t *testing.T) {
	hosts := HostSet{
		"01": {MAC: "01", IP: "172.16.100.100"},
		"02": {MAC: "02", IP: "172.16.100.9"},
		"03": {MAC: "03"},
		"04": {MAC: "04", IP: "10.0.0.1"},
	}
	var order []string
	for _, host := range hosts.SortedByIP() {
		order = append(order, host.MAC)
	}
	assert.Equal(t, []string{"04", "02", "01", "03"}, order)
}
