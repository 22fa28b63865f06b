package hypervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/netsot/common"
	"dev.hon.one/netsot/nautobot"
	"dev.hon.one/netsot/util"
)

// Custom fields set on VMs when the inventory defines them.
const (
	FieldVMID   = "proxmox_vmid"
	FieldNode   = "proxmox_node"
	FieldVMType = "proxmox_vmtype"
)

// Options - Per-run sync options.
type Options struct {
	NodeFilter        string // Substring of node names to sync, empty for all
	VMIDFilter        string // Single guest to sync, empty for all
	IncludeContainers bool
	MarkStale         bool
}

// Filtered - If only part of the cluster is synced.
func (options Options) Filtered() bool {
	return options.NodeFilter != "" || options.VMIDFilter != ""
}

// Report - Counters and findings of one sync.
type Report struct {
	common.Tally
	Nodes         int
	Guests        int
	AgentFailures int
	Stale         []string // VMs newly tagged as stale
}

// Syncer - Syncs hypervisor state into the inventory. Dry-run is a property of the inventory client.
type Syncer struct {
	proxmox   *Client
	inventory *nautobot.Client
	config    common.HypervisorConfig

	activeID  string
	offlineID string
	clusterID string
	report    Report
	addresses map[string]string // Address IDs created in this run, by host IP
	links     map[string]bool   // Host IP and interface pairs linked in this run
}

// NewSyncer - Create a syncer.
func NewSyncer(proxmox *Client, inventory *nautobot.Client, config common.HypervisorConfig) *Syncer {
	return &Syncer{
		proxmox:   proxmox,
		inventory: inventory,
		config:    config,
	}
}

// Sync - Sync every node, its host interfaces and its guests, then tag VMs that were not seen.
// Failing to list nodes, find statuses or set up the cluster aborts the run; everything else is counted.
func (syncer *Syncer) Sync(ctx context.Context, options Options) (Report, error) {
	syncer.report = Report{}
	syncer.addresses = make(map[string]string)
	syncer.links = make(map[string]bool)

	nodes, err := syncer.proxmox.Nodes(ctx)
	if err != nil {
		return syncer.report, fmt.Errorf("list nodes: %w", err)
	}
	if err := syncer.prepare(ctx); err != nil {
		return syncer.report, err
	}

	seen := make(map[string]bool)
	for _, node := range nodes {
		if options.NodeFilter != "" && !strings.Contains(node.Node, options.NodeFilter) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return syncer.report, err
		}
		syncer.report.Nodes++
		log.WithFields(log.Fields{
			"node": node.Node,
		}).Info("Scanning node")

		if err := syncer.syncNodeInterfaces(ctx, node.Node); err != nil {
			return syncer.report, err
		}
		for _, guest := range syncer.listGuests(ctx, node.Node, options.IncludeContainers) {
			if options.VMIDFilter != "" && string(guest.VMID) != options.VMIDFilter {
				continue
			}
			if guest.Name == "" {
				log.WithFields(log.Fields{
					"node": node.Node,
					"vmid": guest.VMID,
				}).Warn("Skipping guest with no name")
				syncer.report.Skipped++
				continue
			}
			seen[guest.Name] = true
			syncer.report.Guests++
			if err := syncer.syncGuest(ctx, guest); err != nil {
				return syncer.report, err
			}
		}
	}

	if options.MarkStale && options.Filtered() {
		log.Info("Node or guest filter active, not marking stale VMs")
	} else if options.MarkStale {
		if err := syncer.markStale(ctx, seen); err != nil {
			return syncer.report, err
		}
	}

	log.WithFields(log.Fields{
		"nodes":   syncer.report.Nodes,
		"guests":  syncer.report.Guests,
		"created": syncer.report.Created,
		"updated": syncer.report.Updated,
		"linked":  syncer.report.Linked,
		"skipped": syncer.report.Skipped,
		"failed":  syncer.report.Failed,
		"stale":   len(syncer.report.Stale),
	}).Info("Hypervisor sync done")
	return syncer.report, nil
}

func (syncer *Syncer) prepare(ctx context.Context) error {
	active, err := syncer.inventory.FindStatus(ctx, "Active")
	if err != nil {
		return fmt.Errorf("status Active: %w", err)
	}
	offline, err := syncer.inventory.FindStatus(ctx, "Offline")
	if err != nil {
		return fmt.Errorf("status Offline: %w", err)
	}
	syncer.activeID = active.ID
	syncer.offlineID = offline.ID

	clusterType, _, err := nautobot.Upsert(ctx, syncer.inventory, "cluster type", syncer.config.ClusterType,
		func(ctx context.Context) (*nautobot.ClusterType, error) {
			return syncer.inventory.FindClusterType(ctx, syncer.config.ClusterType)
		},
		func(ctx context.Context) (*nautobot.ClusterType, error) {
			return syncer.inventory.CreateClusterType(ctx, syncer.config.ClusterType)
		},
	)
	if err != nil {
		return fmt.Errorf("cluster type %q: %w", syncer.config.ClusterType, err)
	}
	cluster, _, err := nautobot.Upsert(ctx, syncer.inventory, "cluster", syncer.config.Cluster,
		func(ctx context.Context) (*nautobot.Cluster, error) {
			return syncer.inventory.FindCluster(ctx, syncer.config.Cluster)
		},
		func(ctx context.Context) (*nautobot.Cluster, error) {
			return syncer.inventory.CreateCluster(ctx, syncer.config.Cluster, clusterType.ID)
		},
	)
	if err != nil {
		return fmt.Errorf("cluster %q: %w", syncer.config.Cluster, err)
	}
	syncer.clusterID = cluster.ID
	return nil
}

// fail - Count a failure, or return it if the run cannot continue.
func (syncer *Syncer) fail(logger *log.Entry, message string, err error) error {
	if nautobot.IsFatal(err) {
		return err
	}
	logger.WithError(err).Error(message)
	syncer.report.Failed++
	return nil
}

func (syncer *Syncer) listGuests(ctx context.Context, node string, includeContainers bool) []Guest {
	kinds := []string{KindVM}
	if includeContainers {
		kinds = append(kinds, KindContainer)
	}
	var guests []Guest
	for _, kind := range kinds {
		list, err := syncer.proxmox.Guests(ctx, node, kind)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"node": node,
				"kind": kind,
			}).Error("Failed to list guests")
			syncer.report.Failed++
			continue
		}
		guests = append(guests, list...)
	}
	return guests
}

// syncNodeInterfaces - Upsert bridges and VLAN interfaces of a node on its device, with their addresses.
func (syncer *Syncer) syncNodeInterfaces(ctx context.Context, node string) error {
	logger := log.WithField("node", node)
	device, err := syncer.inventory.FindDevice(ctx, node)
	if errors.Is(err, nautobot.ErrNotFound) {
		logger.Warn("Node has no device in the inventory, skipping host interfaces")
		return nil
	}
	if err != nil {
		return syncer.fail(logger, "Failed to look up node device", err)
	}

	interfaces, err := syncer.proxmox.NodeInterfaces(ctx, node)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch node network")
		syncer.report.Failed++
		return nil
	}
	for _, hostInterface := range interfaces {
		name := hostInterface.Iface
		if !strings.HasPrefix(name, "vmbr") && !strings.Contains(name, ".") {
			continue
		}
		interfaceType := "virtual"
		if strings.HasPrefix(name, "vmbr") {
			interfaceType = "bridge"
		}
		ifaceLogger := logger.WithField("interface", name)
		iface, created, err := nautobot.Upsert(ctx, syncer.inventory, "interface", node+" "+name,
			func(ctx context.Context) (*nautobot.Interface, error) {
				return syncer.inventory.FindInterface(ctx, device.ID, name)
			},
			func(ctx context.Context) (*nautobot.Interface, error) {
				return syncer.inventory.CreateInterface(ctx, nautobot.NewInterface{
					DeviceID: device.ID,
					Name:     name,
					Type:     interfaceType,
					StatusID: syncer.activeID,
				})
			},
		)
		if err != nil {
			if err := syncer.fail(ifaceLogger, "Failed to sync host interface", err); err != nil {
				return err
			}
			continue
		}
		if created {
			syncer.report.Created++
		} else {
			syncer.report.Skipped++
		}
		if hostInterface.CIDR == "" {
			continue
		}
		err = syncer.assignAddress(ctx, hostInterface.CIDR, "device "+node+" "+name,
			func(ctx context.Context, ipID string) (bool, error) {
				return syncer.inventory.IsLinked(ctx, ipID, iface.ID)
			},
			func(ctx context.Context, ipID string) error {
				return syncer.inventory.LinkIPToInterface(ctx, ipID, iface.ID)
			},
		)
		if err != nil {
			if err := syncer.fail(ifaceLogger.WithField("address", hostInterface.CIDR), "Failed to assign host address", err); err != nil {
				return err
			}
		}
	}
	return nil
}

// assignAddress - Get or create an address and link it with the given functions unless already linked.
// The target names the interface, since interfaces created in a dry run share one ID.
// Addresses and links made earlier in the run count as existing, so a dry run counts like a commit.
func (syncer *Syncer) assignAddress(ctx context.Context, cidr string, target string,
	isLinked func(context.Context, string) (bool, error), link func(context.Context, string) error) error {
	hostIP := common.HostIP(cidr)
	address, created, err := nautobot.Upsert(ctx, syncer.inventory, "address", cidr,
		func(ctx context.Context) (*nautobot.IPAddress, error) {
			if id, found := syncer.addresses[hostIP]; found {
				return &nautobot.IPAddress{ID: id, Address: cidr}, nil
			}
			return syncer.inventory.FindIPAddress(ctx, cidr)
		},
		func(ctx context.Context) (*nautobot.IPAddress, error) {
			return syncer.inventory.CreateIPAddress(ctx, nautobot.NewIPAddress{
				Address:  cidr,
				StatusID: syncer.activeID,
			})
		},
	)
	if err != nil {
		return err
	}
	if created {
		syncer.report.Created++
		syncer.addresses[hostIP] = address.ID
	}
	linkKey := hostIP + "/" + target
	if syncer.links[linkKey] {
		return nil
	}
	linked, err := isLinked(ctx, address.ID)
	if err != nil {
		return err
	}
	if linked {
		return nil
	}
	if err := link(ctx, address.ID); err != nil {
		return err
	}
	syncer.links[linkKey] = true
	syncer.report.Linked++
	util.LogSuccess(log.WithFields(log.Fields{
		"address": cidr,
		"dry_run": syncer.inventory.DryRun(),
	}), "Assigned address")
	return nil
}

// desiredFields - Inventory fields of a guest, for creating or comparing.
func (syncer *Syncer) desiredFields(guest Guest) map[string]interface{} {
	statusID := syncer.offlineID
	if guest.Running() {
		statusID = syncer.activeID
	}
	vcpus := int(guest.CPUs)
	if vcpus < 1 {
		vcpus = 1
	}
	return map[string]interface{}{
		"name":    guest.Name,
		"cluster": syncer.clusterID,
		"status":  statusID,
		"vcpus":   vcpus,
		"memory":  int(guest.MaxMem / 1024 / 1024),
		"disk":    int(guest.MaxDisk / 1024 / 1024 / 1024),
	}
}

// changedFields - Fields of an existing VM that differ from the guest. Custom fields are only set when defined.
func (syncer *Syncer) changedFields(vm *nautobot.VirtualMachine, guest Guest) map[string]interface{} {
	desired := syncer.desiredFields(guest)
	changes := make(map[string]interface{})
	if nautobot.RefID(vm.Status) != desired["status"] {
		changes["status"] = desired["status"]
	}
	for _, field := range []struct {
		name    string
		current *int
	}{
		{"vcpus", vm.VCPUs},
		{"memory", vm.Memory},
		{"disk", vm.Disk},
	} {
		if field.current == nil || *field.current != desired[field.name] {
			changes[field.name] = desired[field.name]
		}
	}

	customFields := make(map[string]interface{})
	for name, value := range map[string]string{
		FieldVMID:   string(guest.VMID),
		FieldNode:   guest.Node,
		FieldVMType: guest.Kind,
	} {
		current, defined := vm.CustomFields[name]
		if defined && fmt.Sprint(current) != value {
			customFields[name] = value
		}
	}
	if len(customFields) > 0 {
		changes["custom_fields"] = customFields
	}
	return changes
}

func (syncer *Syncer) syncGuest(ctx context.Context, guest Guest) error {
	logger := log.WithFields(log.Fields{
		"node": guest.Node,
		"vmid": guest.VMID,
		"vm":   guest.Name,
		"kind": guest.Kind,
	})

	vm, err := syncer.inventory.FindVirtualMachine(ctx, guest.Name, syncer.clusterID)
	switch {
	case errors.Is(err, nautobot.ErrNotFound):
		vm, err = syncer.inventory.CreateVirtualMachine(ctx, syncer.desiredFields(guest))
		if err != nil {
			return syncer.fail(logger, "Failed to create VM", err)
		}
		syncer.report.Created++
		util.LogSuccess(logger.WithField("dry_run", syncer.inventory.DryRun()), "Created VM")
		// Custom fields only exist once the object does
		if changes := syncer.changedFields(vm, guest); changes["custom_fields"] != nil {
			if err := syncer.inventory.UpdateVirtualMachine(ctx, vm.ID, map[string]interface{}{"custom_fields": changes["custom_fields"]}); err != nil {
				return syncer.fail(logger, "Failed to set VM custom fields", err)
			}
		}
	case err != nil:
		return syncer.fail(logger, "Failed to look up VM", err)
	default:
		changes := syncer.changedFields(vm, guest)
		if len(changes) == 0 {
			logger.Debug("VM unchanged")
			syncer.report.Skipped++
			break
		}
		if err := syncer.inventory.UpdateVirtualMachine(ctx, vm.ID, changes); err != nil {
			return syncer.fail(logger, "Failed to update VM", err)
		}
		syncer.report.Updated++
		util.LogSuccess(logger.WithFields(log.Fields{
			"fields":  fieldNames(changes),
			"dry_run": syncer.inventory.DryRun(),
		}), "Updated VM")
	}

	if !guest.Running() {
		return nil
	}
	interfaces, err := syncer.proxmox.GuestInterfaces(ctx, guest)
	if err != nil {
		// Guest agent missing or not running, the rest of the run is unaffected
		logger.WithError(err).Warn("Failed to read guest interfaces")
		syncer.report.AgentFailures++
		return nil
	}
	for _, guestInterface := range interfaces {
		if err := syncer.syncGuestInterface(ctx, logger, vm.ID, guest.Name, guestInterface); err != nil {
			return err
		}
	}
	return nil
}

func (syncer *Syncer) syncGuestInterface(ctx context.Context, logger *log.Entry, vmID string, vmName string, guestInterface GuestInterface) error {
	logger = logger.WithField("interface", guestInterface.Name)
	iface, created, err := nautobot.Upsert(ctx, syncer.inventory, "VM interface", guestInterface.Name,
		func(ctx context.Context) (*nautobot.VMInterface, error) {
			return syncer.inventory.FindVMInterface(ctx, vmID, guestInterface.Name)
		},
		func(ctx context.Context) (*nautobot.VMInterface, error) {
			return syncer.inventory.CreateVMInterface(ctx, vmID, guestInterface.Name, syncer.activeID, guestInterface.MACAddress)
		},
	)
	if err != nil {
		return syncer.fail(logger, "Failed to sync VM interface", err)
	}
	if created {
		syncer.report.Created++
	}
	for _, cidr := range guestInterface.Addresses {
		err := syncer.assignAddress(ctx, cidr, "vm "+vmName+" "+guestInterface.Name,
			func(ctx context.Context, ipID string) (bool, error) {
				return syncer.inventory.IsLinkedToVMInterface(ctx, ipID, iface.ID)
			},
			func(ctx context.Context, ipID string) error {
				return syncer.inventory.LinkIPToVMInterface(ctx, ipID, iface.ID)
			},
		)
		if err != nil {
			if err := syncer.fail(logger.WithField("address", cidr), "Failed to assign guest address", err); err != nil {
				return err
			}
		}
	}
	return nil
}

// markStale - Tag cluster VMs that were not seen. Already tagged VMs are left alone.
func (syncer *Syncer) markStale(ctx context.Context, seen map[string]bool) error {
	tag, err := syncer.inventory.UpsertTag(ctx, syncer.config.StaleTag, syncer.config.StaleTagColor)
	if err != nil {
		return syncer.fail(log.WithField("tag", syncer.config.StaleTag), "Failed to get stale tag", err)
	}
	vms, err := syncer.inventory.ListVirtualMachines(ctx, syncer.clusterID)
	if err != nil {
		return syncer.fail(log.WithField("cluster", syncer.config.Cluster), "Failed to list cluster VMs", err)
	}
	for _, vm := range vms {
		if seen[vm.Name] {
			continue
		}
		logger := log.WithField("vm", vm.Name)
		if nautobot.HasRef(vm.Tags, tag.ID) {
			logger.Debug("VM already marked stale")
			continue
		}
		tagIDs := []string{tag.ID}
		for _, existing := range vm.Tags {
			tagIDs = append(tagIDs, existing.ID)
		}
		if err := syncer.inventory.UpdateVirtualMachine(ctx, vm.ID, map[string]interface{}{"tags": tagIDs}); err != nil {
			if err := syncer.fail(logger, "Failed to mark VM stale", err); err != nil {
				return err
			}
			continue
		}
		logger.WithField("dry_run", syncer.inventory.DryRun()).Warn("Marked stale")
		syncer.report.Updated++
		syncer.report.Stale = append(syncer.report.Stale, vm.Name)
	}
	return nil
}

func fieldNames(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
