package reconcile

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/nautobot"
)

// SyncInterfaces - Create the interfaces declared in the mapping tables that are missing, in table order.
// Devices that do not exist count one failure per declared interface.
func (reconciler *Reconciler) SyncInterfaces(ctx context.Context, tables *common.MappingTables) (Report, error) {
	var report Report
	if err := reconciler.prepare(ctx); err != nil {
		return report, err
	}

	for _, table := range tables.Roles() {
		for _, device := range table.Devices {
			if len(device.Interfaces) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := reconciler.syncDeviceInterfaces(ctx, &report, device); err != nil {
				return report, err
			}
		}
	}

	logTally("Interface sync done", report.Tally)
	return report, nil
}

func (reconciler *Reconciler) syncDeviceInterfaces(ctx context.Context, report *Report, mapping common.DeviceMapping) error {
	deviceLogger := log.WithField("device", mapping.Device)
	device, err := reconciler.client.FindDevice(ctx, mapping.Device)
	if err != nil {
		if nautobot.IsFatal(err) {
			return err
		}
		action := missingOrFailed(err)
		for _, declared := range mapping.Interfaces {
			reconciler.logOutcome(deviceLogger.WithField("interface", declared.Name).WithError(err),
				Outcome{Action: action, Detail: "Device not found"})
			report.add(Outcome{
				Subject: mapping.Device + " " + declared.Name,
				Action:  action,
				Detail:  fmt.Sprintf("Device not found: %v", err),
			})
		}
		return nil
	}

	for _, declared := range mapping.Interfaces {
		declared := declared
		logger := deviceLogger.WithField("interface", declared.Name)
		outcome := Outcome{Subject: mapping.Device + " " + declared.Name}
		_, created, err := nautobot.Upsert(ctx, reconciler.client, "interface", outcome.Subject,
			func(ctx context.Context) (*nautobot.Interface, error) {
				return reconciler.client.FindInterface(ctx, device.ID, declared.Name)
			},
			func(ctx context.Context) (*nautobot.Interface, error) {
				return reconciler.client.CreateInterface(ctx, nautobot.NewInterface{
					DeviceID:    device.ID,
					Name:        declared.Name,
					Type:        declared.Type,
					StatusID:    reconciler.statusID,
					Description: declared.Description,
				})
			},
		)
		switch {
		case err != nil && nautobot.IsFatal(err):
			return err
		case err != nil:
			outcome.Action = ActionFailed
			outcome.Detail = "Failed to create interface"
			logger = logger.WithError(err)
		case created:
			outcome.Action = ActionCreate
			outcome.Detail = "Created interface"
		default:
			outcome.Action = ActionSkip
			outcome.Detail = "Interface already exists"
		}
		reconciler.logOutcome(logger, outcome)
		if err != nil {
			outcome.Detail = fmt.Sprintf("%v: %v", outcome.Detail, err)
		}
		report.add(outcome)
	}
	return nil
}
