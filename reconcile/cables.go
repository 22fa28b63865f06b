package reconcile

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/nautobot"
)

// Status of new cables if the inventory defines it, else the configured status is used.
const cableStatus = "Connected"

// ApplyCables - Create planned cables whose terminations both exist and are not cabled yet.
func (reconciler *Reconciler) ApplyCables(ctx context.Context, plans []common.CablePlan) (Report, error) {
	var report Report
	if err := reconciler.prepare(ctx); err != nil {
		return report, err
	}
	statusID := reconciler.statusID
	status, err := reconciler.client.FindStatus(ctx, cableStatus)
	switch {
	case err == nil:
		statusID = status.ID
	case !errors.Is(err, nautobot.ErrNotFound):
		return report, fmt.Errorf("status %q: %w", cableStatus, err)
	}

	cabled := make(map[string]bool) // Interfaces cabled in this run
	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := Outcome{Subject: fmt.Sprintf("%v %v <> %v %v", plan.DeviceA, plan.InterfaceA, plan.DeviceB, plan.InterfaceB)}
		logger := log.WithFields(log.Fields{
			"device_a":    plan.DeviceA,
			"interface_a": plan.InterfaceA,
			"device_b":    plan.DeviceB,
			"interface_b": plan.InterfaceB,
		})
		action, detail, err := reconciler.applyCable(ctx, plan, statusID, cabled)
		outcome.Action = action
		outcome.Detail = detail
		if err != nil {
			if nautobot.IsFatal(err) {
				return report, err
			}
			logger = logger.WithError(err)
		}
		reconciler.logOutcome(logger, outcome)
		if err != nil {
			outcome.Detail = fmt.Sprintf("%v: %v", detail, err)
		}
		report.add(outcome)
	}

	logTally("Cable sync done", report.Tally)
	return report, nil
}

func (reconciler *Reconciler) applyCable(ctx context.Context, plan common.CablePlan, statusID string, cabled map[string]bool) (Action, string, error) {
	a, err := reconciler.findTermination(ctx, plan.DeviceA, plan.InterfaceA)
	if err != nil {
		return missingOrFailed(err), "Termination A not found", err
	}
	b, err := reconciler.findTermination(ctx, plan.DeviceB, plan.InterfaceB)
	if err != nil {
		return missingOrFailed(err), "Termination B not found", err
	}
	if a.Cable != nil || b.Cable != nil || cabled[a.ID] || cabled[b.ID] {
		return ActionSkip, "Termination already cabled", nil
	}
	if _, err := reconciler.client.CreateCable(ctx, a.ID, b.ID, statusID, plan.Label); err != nil {
		return ActionFailed, "Failed to create cable", err
	}
	cabled[a.ID] = true
	cabled[b.ID] = true
	return ActionCreate, "Created cable", nil
}

func (reconciler *Reconciler) findTermination(ctx context.Context, deviceName string, interfaceName string) (*nautobot.Interface, error) {
	device, err := reconciler.client.FindDevice(ctx, deviceName)
	if err != nil {
		return nil, err
	}
	return reconciler.client.FindInterface(ctx, device.ID, interfaceName)
}
