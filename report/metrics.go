package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/util"
)

// BuildRegistry - Registry holding the run tally and per-source scrape results.
func BuildRegistry(run common.RunEntry, scrapes []common.ScrapeEntry) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	util.NewExporterMetric(registry, common.PrometheusNamespace, common.AppVersion)

	namespace := common.PrometheusNamespace
	for name, value := range map[string]int{
		"created": run.Tally.Created,
		"linked":  run.Tally.Linked,
		"updated": run.Tally.Updated,
		"skipped": run.Tally.Skipped,
		"failed":  run.Tally.Failed,
	} {
		util.NewGauge(registry, namespace, "run", name, "Records "+name+" in the last run.", nil).Set(float64(value))
	}
	util.NewGauge(registry, namespace, "run", "duration_seconds", "Duration of the last run.", nil).Set(run.Duration.Seconds())
	util.NewGauge(registry, namespace, "run", "last_timestamp_seconds", "Start of the last run.", nil).Set(float64(run.Time.Unix()))

	if len(scrapes) == 0 {
		return registry
	}
	labels := prometheus.Labels{"source": ""}
	success := util.NewGaugeVec(registry, namespace, "scrape", "success", "If collecting the source succeeded.", nil, labels)
	duration := util.NewGaugeVec(registry, namespace, "scrape", "duration_seconds", "Duration of collecting the source.", nil, labels)
	records := util.NewGaugeVec(registry, namespace, "scrape", "records", "Records collected from the source.", nil, labels)
	for _, scrape := range scrapes {
		value := 0.0
		if scrape.Success {
			value = 1
		}
		success.WithLabelValues(scrape.Source).Set(value)
		duration.WithLabelValues(scrape.Source).Set(scrape.Duration.Seconds())
		records.WithLabelValues(scrape.Source).Set(float64(scrape.Records))
	}
	return registry
}

// PushMetrics - Push the run metrics to the Pushgateway, grouped by command and mode.
func PushMetrics(ctx context.Context, url string, run common.RunEntry, scrapes []common.ScrapeEntry) error {
	mode := "commit"
	if run.DryRun {
		mode = "dry_run"
	}
	err := util.PushRegistry(ctx, url, common.AppName, prometheus.Labels{
		"command": run.Command,
		"mode":    mode,
	}, BuildRegistry(run, scrapes))
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"url":     url,
		"command": run.Command,
	}).Trace("Pushed run metrics")
	return nil
}
