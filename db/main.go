// Package db stores run history in InfluxDB.
package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"dev.hon.one/netsot/common"
)

// Writer - Writes run, scrape and host points. Writes are blocking, there is no background flushing.
type Writer struct {
	client   influxdb2.Client
	writeAPI influxdb2api.WriteAPIBlocking
	url      string
}

// NewWriter - Connect to the database and check that it is up.
func NewWriter(ctx context.Context, config common.InfluxDBConfig) (*Writer, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: InfluxDB URL not configured", common.ErrInvalidConfig)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("%w: %v not set", common.ErrMissingCredential, common.EnvInfluxDBToken)
	}
	options := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(common.DefaultTimeout / time.Second))
	client := influxdb2.NewClientWithOptions(config.URL, config.Token, options)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	log.WithFields(log.Fields{
		"url":    config.URL,
		"status": health.Status,
	}).Trace("Database reachable")

	return &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Bucket),
		url:      config.URL,
	}, nil
}

// Close - Close the client.
func (writer *Writer) Close() {
	writer.client.Close()
	log.Trace("DB client stopped")
}

func (writer *Writer) write(ctx context.Context, points ...*influxdb2write.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := writer.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write to %v: %w", writer.url, err)
	}
	return nil
}

// StoreRunEntry - Store the summary of a command run.
func (writer *Writer) StoreRunEntry(ctx context.Context, entry common.RunEntry) error {
	log.WithFields(log.Fields{
		"command":  entry.Command,
		"time":     entry.Time,
		"duration": entry.Duration,
		"dry_run":  entry.DryRun,
	}).Trace("Run entry")

	point := influxdb2.NewPointWithMeasurement("run").
		AddTag("command", entry.Command).
		AddTag("dry_run", strconv.FormatBool(entry.DryRun)).
		AddField("duration_seconds", entry.Duration.Seconds()).
		AddField("created", entry.Tally.Created).
		AddField("linked", entry.Tally.Linked).
		AddField("updated", entry.Tally.Updated).
		AddField("skipped", entry.Tally.Skipped).
		AddField("failed", entry.Tally.Failed).
		SetTime(entry.Time)
	return writer.write(ctx, point)
}

// StoreScrapeEntries - Store timing and results of collected sources.
func (writer *Writer) StoreScrapeEntries(ctx context.Context, entries []common.ScrapeEntry) error {
	points := make([]*influxdb2write.Point, 0, len(entries))
	for _, entry := range entries {
		log.WithFields(log.Fields{
			"source":   entry.Source,
			"time":     entry.Time,
			"duration": entry.Duration,
			"success":  entry.Success,
		}).Trace("Scrape entry")

		points = append(points, influxdb2.NewPointWithMeasurement("scrape").
			AddTag("source", entry.Source).
			AddField("duration_seconds", entry.Duration.Seconds()).
			AddField("success", entry.Success).
			AddField("records", entry.Records).
			SetTime(entry.Time))
	}
	return writer.write(ctx, points...)
}

// StoreDiscoveredHosts - Store one point per discovered host.
func (writer *Writer) StoreDiscoveredHosts(ctx context.Context, when time.Time, hosts []common.DiscoveredHost) error {
	points := make([]*influxdb2write.Point, 0, len(hosts))
	for _, host := range hosts {
		point := influxdb2.NewPointWithMeasurement("discovered_host").
			AddTag("source", string(host.Source)).
			AddTag("kind", string(host.Kind)).
			AddField("mac_address", host.MAC).
			AddField("ip_address", host.IP).
			AddField("hostname", host.Hostname).
			SetTime(when)
		if host.Port != nil {
			point.AddField("switch", host.Port.Switch).
				AddField("switch_port", host.Port.PortName)
		}
		points = append(points, point)
	}
	return writer.write(ctx, points...)
}
