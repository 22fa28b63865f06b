// Package reconcile applies address plans to the inventory.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/nautobot"
	"dev.hon.one/netsot/util"
)

// Action - What was decided for a plan entry.
type Action string

// Actions.
const (
	ActionSkip          Action = "skip"
	ActionCreate        Action = "create"
	ActionCreateAndLink Action = "create-and-link"
	ActionLink          Action = "link"
	ActionMissingTarget Action = "error-missing-target"
	ActionNoPrefix      Action = "skip-no-prefix"
	ActionFailed        Action = "error"
)

// Outcome - Result of one plan entry, interface or cable.
type Outcome struct {
	Subject string
	Entry   common.PlanEntry // Only for address entries
	Action  Action
	Detail  string
}

// Report - Outcomes and counters of one reconciliation.
type Report struct {
	common.Tally
	Outcomes []Outcome
}

func (report *Report) record(entry common.PlanEntry, action Action, detail string) {
	subject := entry.Address
	if entry.HasTarget() {
		subject += " on " + entry.Device + " " + entry.Interface
	}
	report.add(Outcome{Subject: subject, Entry: entry, Action: action, Detail: detail})
}

func (report *Report) add(outcome Outcome) {
	report.Outcomes = append(report.Outcomes, outcome)
	switch outcome.Action {
	case ActionSkip, ActionNoPrefix:
		report.Skipped++
	case ActionCreate:
		report.Created++
	case ActionCreateAndLink:
		report.Created++
		report.Linked++
	case ActionLink:
		report.Linked++
	case ActionMissingTarget, ActionFailed:
		report.Failed++
	}
}

// Reconciler - Applies plan entries through the inventory client. Dry-run is a property of the client.
type Reconciler struct {
	client   *nautobot.Client
	prefixes []*net.IPNet
	status   string

	statusID    string
	prefixCache map[string]string
	tagCache    map[string]string
	created     map[string]string // Address IDs created in this run, by host IP
	linked      map[string]bool   // Host IP and interface ID pairs linked in this run
}

// NewReconciler - Create a reconciler. Prefixes are the candidate parent networks for new addresses.
func NewReconciler(client *nautobot.Client, config common.InventoryConfig) (*Reconciler, error) {
	reconciler := &Reconciler{
		client:      client,
		status:      config.Status,
		prefixCache: make(map[string]string),
		tagCache:    make(map[string]string),
		created:     make(map[string]string),
		linked:      make(map[string]bool),
	}
	for _, prefix := range config.Prefixes {
		_, network, err := net.ParseCIDR(prefix)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed prefix %q", common.ErrInvalidConfig, prefix)
		}
		reconciler.prefixes = append(reconciler.prefixes, network)
	}
	return reconciler, nil
}

// Reconcile - Process entries in order. Per-entry failures are counted and the run continues;
// an authorization failure or a missing status aborts with an error and the report so far.
func (reconciler *Reconciler) Reconcile(ctx context.Context, entries []common.PlanEntry) (Report, error) {
	var report Report
	if err := reconciler.prepare(ctx); err != nil {
		return report, err
	}
	reconciler.created = make(map[string]string)
	reconciler.linked = make(map[string]bool)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		action, detail, err := reconciler.apply(ctx, entry)
		logger := log.WithFields(log.Fields{
			"address":   entry.Address,
			"device":    entry.Device,
			"interface": entry.Interface,
		})
		recorded := detail
		if err != nil {
			if nautobot.IsFatal(err) {
				return report, err
			}
			logger = logger.WithError(err)
			recorded = fmt.Sprintf("%v: %v", detail, err)
		}
		reconciler.logOutcome(logger, Outcome{Action: action, Detail: detail})
		report.record(entry, action, recorded)
	}

	logTally("Reconciliation done", report.Tally)
	return report, nil
}

// prepare - Look up the status used for new objects.
func (reconciler *Reconciler) prepare(ctx context.Context) error {
	if reconciler.statusID != "" {
		return nil
	}
	status, err := reconciler.client.FindStatus(ctx, reconciler.status)
	if err != nil {
		return fmt.Errorf("status %q: %w", reconciler.status, err)
	}
	reconciler.statusID = status.ID
	return nil
}

func logTally(message string, tally common.Tally) {
	log.WithFields(log.Fields{
		"created": tally.Created,
		"linked":  tally.Linked,
		"updated": tally.Updated,
		"skipped": tally.Skipped,
		"failed":  tally.Failed,
	}).Info(message)
}

// logOutcome - Log an outcome at the level of its action.
func (reconciler *Reconciler) logOutcome(logger *log.Entry, outcome Outcome) {
	logger = logger.WithField("action", outcome.Action)
	switch outcome.Action {
	case ActionSkip, ActionNoPrefix:
		logger.Info(outcome.Detail)
	case ActionMissingTarget, ActionFailed:
		logger.Error(outcome.Detail)
	default:
		util.LogSuccess(logger.WithField("dry_run", reconciler.client.DryRun()), outcome.Detail)
	}
}

func (reconciler *Reconciler) apply(ctx context.Context, entry common.PlanEntry) (Action, string, error) {
	var interfaceID string
	if entry.HasTarget() {
		device, err := reconciler.client.FindDevice(ctx, entry.Device)
		if err != nil {
			return missingOrFailed(err), "Device not found", err
		}
		iface, err := reconciler.client.FindInterface(ctx, device.ID, entry.Interface)
		if err != nil {
			return missingOrFailed(err), "Interface not found", err
		}
		interfaceID = iface.ID
	}

	hostIP := common.HostIP(entry.Address)
	existing, err := reconciler.findAddress(ctx, hostIP, entry.Address)
	if err != nil && !errors.Is(err, nautobot.ErrNotFound) {
		return ActionFailed, "Address lookup failed", err
	}

	if existing != nil {
		if !entry.HasTarget() {
			return ActionSkip, "Address already exists", nil
		}
		linked, err := reconciler.isLinked(ctx, hostIP, existing.ID, interfaceID)
		if err != nil {
			return ActionFailed, "Assignment lookup failed", err
		}
		if linked {
			return ActionSkip, "Address already assigned", nil
		}
		if err := reconciler.link(ctx, hostIP, existing.ID, interfaceID); err != nil {
			return ActionFailed, "Failed to assign address", err
		}
		return ActionLink, "Assigned existing address", nil
	}

	parentID, err := reconciler.parentPrefix(ctx, entry.Address)
	if err != nil {
		if errors.Is(err, nautobot.ErrNotFound) {
			return ActionNoPrefix, "No matching prefix", nil
		}
		return ActionFailed, "Prefix lookup failed", err
	}
	tagIDs, err := reconciler.tagIDs(ctx, entry.Tags)
	if err != nil {
		return ActionFailed, "Tag lookup failed", err
	}

	created, err := reconciler.client.CreateIPAddress(ctx, nautobot.NewIPAddress{
		Address:     common.WithPrefixLength(entry.Address),
		StatusID:    reconciler.statusID,
		ParentID:    parentID,
		DNSName:     entry.DNSName,
		Description: entry.Description,
		TagIDs:      tagIDs,
	})
	if err != nil {
		return ActionFailed, "Failed to create address", err
	}
	reconciler.created[hostIP] = created.ID
	if !entry.HasTarget() {
		return ActionCreate, "Created address", nil
	}
	if err := reconciler.link(ctx, hostIP, created.ID, interfaceID); err != nil {
		// The address exists now, the next run only links it
		return ActionFailed, "Created address but failed to assign it", err
	}
	return ActionCreateAndLink, "Created and assigned address", nil
}

// findAddress - Addresses created earlier in the run are found without a lookup, so a dry run
// sees them like a committing run does.
func (reconciler *Reconciler) findAddress(ctx context.Context, hostIP string, address string) (*nautobot.IPAddress, error) {
	if id, found := reconciler.created[hostIP]; found {
		return &nautobot.IPAddress{ID: id, Address: address}, nil
	}
	return reconciler.client.FindIPAddress(ctx, address)
}

func (reconciler *Reconciler) isLinked(ctx context.Context, hostIP string, ipAddressID string, interfaceID string) (bool, error) {
	if reconciler.linked[hostIP+"/"+interfaceID] {
		return true, nil
	}
	return reconciler.client.IsLinked(ctx, ipAddressID, interfaceID)
}

func (reconciler *Reconciler) link(ctx context.Context, hostIP string, ipAddressID string, interfaceID string) error {
	if err := reconciler.client.LinkIPToInterface(ctx, ipAddressID, interfaceID); err != nil {
		return err
	}
	reconciler.linked[hostIP+"/"+interfaceID] = true
	return nil
}

func missingOrFailed(err error) Action {
	if errors.Is(err, nautobot.ErrNotFound) {
		return ActionMissingTarget
	}
	return ActionFailed
}

// parentPrefix - The configured prefix containing the address and its inventory ID.
func (reconciler *Reconciler) parentPrefix(ctx context.Context, address string) (string, error) {
	ip := net.ParseIP(common.HostIP(address))
	if ip == nil {
		return "", fmt.Errorf("malformed address %q: %w", address, nautobot.ErrNotFound)
	}
	var match *net.IPNet
	for _, network := range reconciler.prefixes {
		if network.Contains(ip) {
			match = network
			break
		}
	}
	if match == nil {
		return "", fmt.Errorf("no configured prefix contains %v: %w", ip, nautobot.ErrNotFound)
	}
	if id, found := reconciler.prefixCache[match.String()]; found {
		return id, nil
	}
	prefix, err := reconciler.client.FindPrefix(ctx, match.String())
	if err != nil {
		return "", err
	}
	reconciler.prefixCache[match.String()] = prefix.ID
	return prefix.ID, nil
}

func (reconciler *Reconciler) tagIDs(ctx context.Context, names []string) ([]string, error) {
	var ids []string
	for _, name := range names {
		id, found := reconciler.tagCache[name]
		if !found {
			tag, err := reconciler.client.UpsertTag(ctx, name, nautobot.DefaultTagColor)
			if err != nil {
				return nil, err
			}
			id = tag.ID
			reconciler.tagCache[name] = id
		}
		ids = append(ids, id)
	}
	return ids, nil
}
