package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/db"
	"dev.hon.one/netsot/nautobot"
	"dev.hon.one/netsot/reconcile"
	"dev.hon.one/netsot/report"
)

// Time allowed for pushing metrics and history after the run, even if the run was interrupted.
const publishTimeout = 2 * common.DefaultTimeout

var errFailuresCounted = errors.New("failures counted")

// commandRun - State shared by the steps of one subcommand run.
type commandRun struct {
	command   string
	dryRun    bool
	config    *common.Config
	startTime time.Time
	scrapes   []common.ScrapeEntry
	hosts     []common.DiscoveredHost
}

func newCommandRun(cmd *cobra.Command, dryRun bool) (*commandRun, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if dryRun {
		log.Info("Dry run, the inventory will not be changed")
	}
	return &commandRun{
		command:   cmd.Name(),
		dryRun:    dryRun,
		config:    config,
		startTime: time.Now(),
	}, nil
}

// loadConfig - A missing config file at the default path means defaults.
func loadConfig(cmd *cobra.Command) (*common.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			log.WithFields(log.Fields{
				"config_path": path,
			}).Debug("No config file, using defaults")
			path = ""
		}
	}
	return common.LoadConfig(path)
}

func (run *commandRun) loadMappings() (*common.MappingTables, error) {
	return common.LoadMappingTables(run.config.MappingsPath)
}

// optionalMappings - Mapping tables if the file exists, else empty tables.
func (run *commandRun) optionalMappings() (*common.MappingTables, error) {
	tables, err := run.loadMappings()
	if errors.Is(err, os.ErrNotExist) {
		log.WithFields(log.Fields{
			"mappings_path": run.config.MappingsPath,
		}).Info("No mapping tables, discovered addresses will not be bound to interfaces")
		return &common.MappingTables{}, nil
	}
	return tables, err
}

// inventory - Inventory client, checked to be reachable and to accept the token.
func (run *commandRun) inventory(ctx context.Context) (*nautobot.Client, error) {
	client, err := nautobot.NewClient(run.config.Inventory, run.dryRun)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("inventory at %v: %w", run.config.Inventory.URL, err)
	}
	return client, nil
}

func newReconciler(ctx context.Context, run *commandRun) (*reconcile.Reconciler, error) {
	client, err := run.inventory(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.NewReconciler(client, run.config.Inventory)
}

func logCollectFailure(source string, err error) {
	log.WithError(err).WithFields(log.Fields{
		"source": source,
	}).Error("Collecting failed, continuing with partial data")
}

// finish - Print the tally and publish the run. Counted failures give a non-nil error.
func (run *commandRun) finish(tally common.Tally) error {
	report.PrintTally(os.Stdout, run.command, run.dryRun, tally)
	run.publish(common.RunEntry{
		Time:     run.startTime,
		Command:  run.command,
		DryRun:   run.dryRun,
		Duration: time.Since(run.startTime),
		Tally:    tally,
	})
	if tally.Failed > 0 {
		return fmt.Errorf("%w: %d", errFailuresCounted, tally.Failed)
	}
	return nil
}

// publish - Push metrics and store history where configured. Failures are only logged.
func (run *commandRun) publish(entry common.RunEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if url := run.config.Metrics.PushgatewayURL; url != "" {
		if err := report.PushMetrics(ctx, url, entry, run.scrapes); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"url": url,
			}).Warn("Failed to push metrics")
		}
	}

	if run.config.InfluxDB.URL == "" {
		return
	}
	writer, err := db.NewWriter(ctx, run.config.InfluxDB)
	if err != nil {
		log.WithError(err).Warn("Failed to connect to InfluxDB")
		return
	}
	defer writer.Close()
	if err := writer.StoreRunEntry(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to store run entry")
	}
	if len(run.scrapes) > 0 {
		if err := writer.StoreScrapeEntries(ctx, run.scrapes); err != nil {
			log.WithError(err).Warn("Failed to store scrape entries")
		}
	}
	if len(run.hosts) > 0 && !run.dryRun {
		if err := writer.StoreDiscoveredHosts(ctx, run.startTime, run.hosts); err != nil {
			log.WithError(err).Warn("Failed to store discovered hosts")
		}
	}
}
