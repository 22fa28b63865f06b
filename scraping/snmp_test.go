package scraping

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/gosnmp/gosnmp"
	snmpmock "github.com/gosnmp/gosnmp/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/netsot/common"
)

func fdbPDU(suffix string, port int) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: "." + common.OIDDot1qTpFdbPort + "." + suffix, Type: gosnmp.Integer, Value: port}
}

func ifNamePDU(index string, name string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: "." + common.OIDIfName + "." + index, Type: gosnmp.OctetString, Value: []byte(name)}
}

func TestWalker_Walk(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := snmpmock.NewMockHandler(ctrl)
	handler.EXPECT().BulkWalkAll("."+common.OIDIfName).Return([]gosnmp.SnmpPDU{
		ifNamePDU("1", "gi1"),
		{Name: "." + common.OIDIfName + ".2", Type: gosnmp.NoSuchInstance},
		{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("other table")},
	}, nil)

	rows, err := NewWalker("cisco", handler).Walk(common.OIDIfName)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1"}, rows[0].Suffix)
	assert.Equal(t, "gi1", rows[0].String())
}

func TestWalker_WalkPartial(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := snmpmock.NewMockHandler(ctrl)
	handler.EXPECT().BulkWalkAll("."+common.OIDDot1qTpFdbPort).Return([]gosnmp.SnmpPDU{
		fdbPDU("1.170.187.204.221.238.255", 3),
		fdbPDU("1.0.17.34.51.68.85", 4),
	}, errors.New("request timeout"))

	rows, err := NewWalker("cisco", handler).Walk(common.OIDDot1qTpFdbPort)

	assert.Error(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, map[string]int{"AA:BB:CC:DD:EE:FF": 3, "00:11:22:33:44:55": 4}, DecodeForwardingTable(rows))
}

func TestCollectSwitch(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := snmpmock.NewMockHandler(ctrl)
	handler.EXPECT().BulkWalkAll("."+common.OIDDot1qTpFdbPort).Return([]gosnmp.SnmpPDU{
		fdbPDU("1.170.187.204.221.238.255", 3),
		fdbPDU("1.2.3", 9),
	}, nil)
	handler.EXPECT().BulkWalkAll("."+common.OIDIfName).Return(nil, errors.New("no response"))

	sw := common.Switch{Name: "cisco", Address: "172.16.100.40", Community: "public"}
	table, err := CollectSwitch(NewWalker(sw.Name, handler), sw)

	assert.Error(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "port-3", table["AA:BB:CC:DD:EE:FF"].PortName)
}
