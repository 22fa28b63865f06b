package dns

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
)

// Report - Counters of one import. Created counts zones and records.
type Report struct {
	common.Tally
	Zones   int
	Records int
}

// Importer - Ensures zones and adds records.
type Importer struct {
	client  *Client
	zones   []string
	catalog string
}

// NewImporter - Create an importer for the zones, linked to the catalog zone if not empty.
func NewImporter(client *Client, zones []string, catalog string) *Importer {
	return &Importer{
		client:  client,
		zones:   zones,
		catalog: catalog,
	}
}

// Import - Ensure all zones, then add a record for every listed name in one of them.
// A rejected token aborts the import; other failures are counted.
func (importer *Importer) Import(ctx context.Context, entries []HostsEntry) (Report, error) {
	var report Report

	for _, zone := range importer.zones {
		created, err := importer.client.EnsureZone(ctx, zone, importer.catalog)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				return report, err
			}
			log.WithError(err).WithField("zone", zone).Error("Failed to ensure zone")
			report.Failed++
			continue
		}
		report.Zones++
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	records, skipped := PlanRecords(entries, importer.zones)
	for _, name := range skipped {
		log.WithField("name", name).Debug("Name is in no zone")
	}
	report.Skipped += len(skipped)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := importer.client.AddRecord(ctx, record); err != nil {
			if errors.Is(err, ErrInvalidToken) {
				return report, err
			}
			log.WithError(err).WithFields(log.Fields{
				"name":       record.Name,
				"ip_address": record.IP,
			}).Error("Failed to add record")
			report.Failed++
			continue
		}
		report.Records++
		report.Created++
	}

	log.WithFields(log.Fields{
		"zones":   report.Zones,
		"records": report.Records,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("DNS import done")
	return report, nil
}
