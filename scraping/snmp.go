package scraping

import (
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// SNMPRow - One walked object: the OID suffix below the walked base OID, and the value.
type SNMPRow struct {
	Suffix []string
	Type   gosnmp.Asn1BER
	Value  interface{}
}

// Walker - Walks SNMP tables on one agent.
type Walker struct {
	name    string
	handler gosnmp.Handler
}

// NewSNMPHandler - Create an SNMP v2c handler for a switch. Not connected.
func NewSNMPHandler(sw common.Switch) gosnmp.Handler {
	handler := gosnmp.NewHandler()
	handler.SetTarget(sw.Address)
	port := uint16(161)
	if sw.Port > 0 {
		port = sw.Port
	}
	handler.SetPort(port)
	handler.SetCommunity(sw.Community)
	handler.SetVersion(gosnmp.Version2c)
	handler.SetTimeout(common.Seconds(sw.TimeoutSeconds))
	handler.SetRetries(1)
	handler.SetMaxRepetitions(25)
	return handler
}

// NewWalker - Create a walker using a connected handler.
func NewWalker(name string, handler gosnmp.Handler) *Walker {
	return &Walker{
		name:    name,
		handler: handler,
	}
}

// Walk - Walk everything below the base OID.
// On an agent error, the rows walked before the error are returned together with the error.
func (walker *Walker) Walk(baseOID string) ([]SNMPRow, error) {
	base := "." + strings.Trim(baseOID, ".")
	pdus, err := walker.handler.BulkWalkAll(base)
	rows := make([]SNMPRow, 0, len(pdus))
	for _, pdu := range pdus {
		suffix, ok := oidSuffix(base, pdu.Name)
		if !ok {
			continue
		}
		switch pdu.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			continue
		}
		rows = append(rows, SNMPRow{Suffix: suffix, Type: pdu.Type, Value: pdu.Value})
	}

	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"device":    walker.name,
			"oid":       baseOID,
			"row_count": len(rows),
		}).Warn("SNMP walk stopped early")
		return rows, fmt.Errorf("walk of %v on %v: %w", baseOID, walker.name, err)
	}
	log.WithFields(log.Fields{
		"device":    walker.name,
		"oid":       baseOID,
		"row_count": len(rows),
	}).Trace("SNMP walk done")
	return rows, nil
}

func oidSuffix(base string, name string) ([]string, bool) {
	name = "." + strings.Trim(name, ".")
	if !strings.HasPrefix(name, base+".") {
		return nil, false
	}
	return strings.Split(name[len(base)+1:], "."), true
}

// Int - Row value as an integer.
func (row SNMPRow) Int() (int, bool) {
	switch row.Type {
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Counter64, gosnmp.Uinteger32:
		return int(gosnmp.ToBigInt(row.Value).Int64()), true
	}
	return 0, false
}

// String - Row value as text.
func (row SNMPRow) String() string {
	switch value := row.Value.(type) {
	case []byte:
		return strings.TrimSpace(string(value))
	case string:
		return strings.TrimSpace(value)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}

// Bytes - Row value as raw octets.
func (row SNMPRow) Bytes() ([]byte, bool) {
	value, ok := row.Value.([]byte)
	return value, ok
}
