package vsphere

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/esxi"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

type vmHandler struct {
	p *Provider
}

func (p *Provider) vmByID(id string) *object.VirtualMachine {
	return object.NewVirtualMachine(p.client, types.ManagedObjectReference{Type: "VirtualMachine", Value: id})
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// guestID maps the short os names used in configuration ("centos",
// "ubuntu") to vSphere guest ids. Full guest ids pass through.
func guestID(os string) string {
	if strings.HasSuffix(os, "Guest") {
		return os
	}
	return os + "64Guest"
}

func osName(guest string) string {
	if s, ok := strings.CutSuffix(guest, "64Guest"); ok {
		return s
	}
	return guest
}

func decodeVM(inputs property.Bag) (*esxi.VirtualMachineArgs, error) {
	var args esxi.VirtualMachineArgs
	if err := property.Decode(inputs, &args); err != nil {
		return nil, err
	}
	if args.SourcePath != nil && *args.SourcePath != "" {
		return nil, fmt.Errorf("deploying from sourcePath %q: %w", *args.SourcePath, provider.ErrUnsupported)
	}
	return &args, nil
}

func desiredPower(args *esxi.VirtualMachineArgs) esxi.PowerState {
	if args.Power == nil || *args.Power == "" {
		return esxi.PowerOn
	}
	return *args.Power
}

func extraConfig(args *esxi.VirtualMachineArgs) []types.BaseOptionValue {
	var opts []types.BaseOptionValue
	for _, kv := range args.Info {
		opts = append(opts, &types.OptionValue{Key: "guestinfo." + kv.Key, Value: kv.Value})
	}
	return opts
}

func (h *vmHandler) create(ctx context.Context, inputs property.Bag) (string, property.Bag, error) {
	args, err := decodeVM(inputs)
	if err != nil {
		return "", nil, err
	}
	name, _ := args.Name.Literal()
	store, _ := args.DiskStore.Literal()
	poolName, _ := args.ResourcePoolName.Literal()

	// Re-issued creates find the machine an interrupted run left behind.
	if existing, err := h.p.finder.VirtualMachine(ctx, name); err == nil {
		ctxlog.FromContext(ctx).Info("Adopting existing virtual machine.", "name", name)
		id := existing.Reference().Value
		out, err := h.update(ctx, id, inputs)
		return id, out, err
	}

	pool, err := h.p.resolvePool(ctx, poolName)
	if err != nil {
		return "", nil, fmt.Errorf("resource pool %q: %w", poolName, err)
	}
	ds, err := h.p.finder.Datastore(ctx, store)
	if err != nil {
		return "", nil, fmt.Errorf("datastore %q: %w", store, err)
	}
	folders, err := h.p.datacenter.Folders(ctx)
	if err != nil {
		return "", nil, err
	}

	devices, bootDisk, err := h.devices(ctx, args, ds, name)
	if err != nil {
		return "", nil, err
	}
	deviceChange, err := devices.ConfigSpec(types.VirtualDeviceConfigSpecOperationAdd)
	if err != nil {
		return "", nil, err
	}
	for _, change := range deviceChange {
		if spec := change.GetVirtualDeviceConfigSpec(); spec.Device == types.BaseVirtualDevice(bootDisk) {
			spec.FileOperation = types.VirtualDeviceConfigSpecFileOperationCreate
		}
	}

	spec := types.VirtualMachineConfigSpec{
		Name:         name,
		GuestId:      guestID(stringOr(args.OS, "centos")),
		NumCPUs:      int32(intOr(args.NumVCpus, 1)),
		MemoryMB:     int64(intOr(args.MemSize, 512)),
		Version:      fmt.Sprintf("vmx-%02d", intOr(args.VirtualHWVer, 13)),
		Annotation:   stringOr(args.Notes, ""),
		Files:        &types.VirtualMachineFileInfo{VmPathName: fmt.Sprintf("[%s]", store)},
		DeviceChange: deviceChange,
		ExtraConfig:  extraConfig(args),
	}
	if args.BootFirmware != nil {
		spec.Firmware = string(*args.BootFirmware)
	}

	t, err := folders.VmFolder.CreateVM(ctx, spec, pool, h.p.host)
	if err != nil {
		return "", nil, fmt.Errorf("create virtual machine %q: %w", name, err)
	}
	info, err := t.WaitForResult(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("create virtual machine %q task failed: %w", name, err)
	}
	vm := object.NewVirtualMachine(h.p.client, info.Result.(types.ManagedObjectReference))

	if err := h.setPower(ctx, vm, args); err != nil {
		return vm.Reference().Value, nil, err
	}
	out, err := h.merged(ctx, vm, inputs)
	return vm.Reference().Value, out, err
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// devices builds the device list of a new machine: a SCSI controller, the
// boot disk, attached disks and network cards.
func (h *vmHandler) devices(ctx context.Context, args *esxi.VirtualMachineArgs, ds *object.Datastore, name string) (object.VirtualDeviceList, *types.VirtualDisk, error) {
	var devices object.VirtualDeviceList
	scsi, err := devices.CreateSCSIController("lsilogic")
	if err != nil {
		return nil, nil, err
	}
	devices = append(devices, scsi)
	controller, err := devices.FindDiskController("scsi")
	if err != nil {
		return nil, nil, err
	}

	bootDisk := devices.CreateDisk(controller, ds.Reference(), ds.Path(fmt.Sprintf("%s/%s.vmdk", name, name)))
	bootDisk.CapacityInKB = int64(intOr(args.BootDiskSize, 16)) * gb
	diskType := esxi.DiskTypeThin
	if args.BootDiskType != nil {
		diskType = *args.BootDiskType
	}
	setBacking(bootDisk, diskType)
	devices = append(devices, bootDisk)

	for _, attached := range args.VirtualDisks {
		disk, err := h.attachedDisk(ctx, devices, controller, attached.VirtualDiskID)
		if err != nil {
			return nil, nil, err
		}
		devices = append(devices, disk)
	}
	for _, ni := range args.NetworkInterfaces {
		card, err := h.nic(ctx, ni)
		if err != nil {
			return nil, nil, err
		}
		devices = append(devices, card)
	}
	return devices, bootDisk, nil
}

func setBacking(disk *types.VirtualDisk, t esxi.DiskType) {
	backing, ok := disk.Backing.(*types.VirtualDiskFlatVer2BackingInfo)
	if !ok {
		return
	}
	switch t {
	case esxi.DiskTypeThin:
		backing.ThinProvisioned = types.NewBool(true)
	case esxi.DiskTypeZeroedThick:
		backing.ThinProvisioned = types.NewBool(false)
	case esxi.DiskTypeEagerZeroedThick:
		backing.ThinProvisioned = types.NewBool(false)
		backing.EagerlyScrub = types.NewBool(true)
	}
}

func backingType(disk *types.VirtualDisk) esxi.DiskType {
	backing, ok := disk.Backing.(*types.VirtualDiskFlatVer2BackingInfo)
	if !ok {
		return esxi.DiskTypeThin
	}
	switch {
	case backing.ThinProvisioned != nil && *backing.ThinProvisioned:
		return esxi.DiskTypeThin
	case backing.EagerlyScrub != nil && *backing.EagerlyScrub:
		return esxi.DiskTypeEagerZeroedThick
	default:
		return esxi.DiskTypeZeroedThick
	}
}

func (h *vmHandler) attachedDisk(ctx context.Context, devices object.VirtualDeviceList, controller types.BaseVirtualController, id string) (*types.VirtualDisk, error) {
	store, _, _, err := parseDiskPath(id)
	if err != nil {
		return nil, err
	}
	ds, err := h.p.finder.Datastore(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("datastore %q: %w", store, err)
	}
	return devices.CreateDisk(controller, ds.Reference(), id), nil
}

func (h *vmHandler) nic(ctx context.Context, ni esxi.NetworkInterface) (types.BaseVirtualDevice, error) {
	network, err := h.p.finder.Network(ctx, ni.VirtualNetwork)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", ni.VirtualNetwork, err)
	}
	backing, err := network.EthernetCardBackingInfo(ctx)
	if err != nil {
		return nil, err
	}
	card, err := object.EthernetCardTypes().CreateEthernetCard(stringOr(ni.NicType, "vmxnet3"), backing)
	if err != nil {
		return nil, err
	}
	if mac := stringOr(ni.MacAddress, ""); mac != "" {
		c := card.(types.BaseVirtualEthernetCard).GetVirtualEthernetCard()
		c.AddressType = string(types.VirtualEthernetCardMacTypeManual)
		c.MacAddress = mac
	}
	return card, nil
}

func (h *vmHandler) read(ctx context.Context, id string) (property.Bag, error) {
	return h.outputs(ctx, h.p.vmByID(id))
}

func (h *vmHandler) update(ctx context.Context, id string, inputs property.Bag) (property.Bag, error) {
	args, err := decodeVM(inputs)
	if err != nil {
		return nil, err
	}
	vm := h.p.vmByID(id)

	var mvm mo.VirtualMachine
	if err := vm.Properties(ctx, vm.Reference(), []string{"name", "config", "runtime.powerState"}, &mvm); err != nil {
		return nil, err
	}
	if mvm.Config == nil {
		return nil, fmt.Errorf("virtual machine %s has no configuration", id)
	}

	spec := types.VirtualMachineConfigSpec{
		Annotation:  stringOr(args.Notes, ""),
		ExtraConfig: extraConfig(args),
	}
	hardware := false
	if n := int32(intOr(args.NumVCpus, 1)); n != mvm.Config.Hardware.NumCPU {
		spec.NumCPUs, hardware = n, true
	}
	if m := int32(intOr(args.MemSize, 512)); m != mvm.Config.Hardware.MemoryMB {
		spec.MemoryMB, hardware = int64(m), true
	}
	changes, err := h.deviceChanges(ctx, args, object.VirtualDeviceList(mvm.Config.Hardware.Device))
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		spec.DeviceChange, hardware = changes, true
	}

	if hardware && mvm.Runtime.PowerState == types.VirtualMachinePowerStatePoweredOn {
		if err := shutdown(ctx, vm, time.Duration(intOr(args.ShutdownTimeout, 20))*time.Second); err != nil {
			return nil, err
		}
	}
	t, err := vm.Reconfigure(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("reconfigure virtual machine %s: %w", id, err)
	}
	if err := t.Wait(ctx); err != nil {
		return nil, fmt.Errorf("reconfigure virtual machine %s: %w", id, err)
	}

	if name, _ := args.Name.Literal(); name != "" && name != mvm.Name {
		t, err := vm.Rename(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := t.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rename virtual machine %s: %w", id, err)
		}
	}

	if err := h.setPower(ctx, vm, args); err != nil {
		return nil, err
	}
	return h.merged(ctx, vm, inputs)
}

// deviceChanges grows the boot disk and swaps network cards or attached
// disks that no longer match.
func (h *vmHandler) deviceChanges(ctx context.Context, args *esxi.VirtualMachineArgs, devices object.VirtualDeviceList) ([]types.BaseVirtualDeviceConfigSpec, error) {
	var changes []types.BaseVirtualDeviceConfigSpec
	disks := devices.SelectByType((*types.VirtualDisk)(nil))

	if len(disks) > 0 {
		boot := disks[0].(*types.VirtualDisk)
		if want := int64(intOr(args.BootDiskSize, 16)) * gb; want > boot.CapacityInKB {
			boot.CapacityInKB = want
			changes = append(changes, &types.VirtualDeviceConfigSpec{
				Operation: types.VirtualDeviceConfigSpecOperationEdit,
				Device:    boot,
			})
		}
	}

	wanted := make(map[string]bool, len(args.VirtualDisks))
	for _, d := range args.VirtualDisks {
		wanted[d.VirtualDiskID] = true
	}
	attached := make(map[string]bool)
	for i, d := range disks {
		if i == 0 {
			continue
		}
		file := diskFileName(d.(*types.VirtualDisk))
		attached[file] = true
		if !wanted[file] {
			changes = append(changes, &types.VirtualDeviceConfigSpec{
				Operation: types.VirtualDeviceConfigSpecOperationRemove,
				Device:    d,
			})
		}
	}
	for _, d := range args.VirtualDisks {
		if attached[d.VirtualDiskID] {
			continue
		}
		controller, err := devices.FindDiskController("scsi")
		if err != nil {
			return nil, err
		}
		disk, err := h.attachedDisk(ctx, devices, controller, d.VirtualDiskID)
		if err != nil {
			return nil, err
		}
		devices = append(devices, disk)
		changes = append(changes, &types.VirtualDeviceConfigSpec{
			Operation: types.VirtualDeviceConfigSpecOperationAdd,
			Device:    disk,
		})
	}

	cards := devices.SelectByType((*types.VirtualEthernetCard)(nil))
	if !nicsMatch(nicOutputs(devices, cards), args.NetworkInterfaces) {
		for _, c := range cards {
			changes = append(changes, &types.VirtualDeviceConfigSpec{
				Operation: types.VirtualDeviceConfigSpecOperationRemove,
				Device:    c,
			})
		}
		for _, ni := range args.NetworkInterfaces {
			card, err := h.nic(ctx, ni)
			if err != nil {
				return nil, err
			}
			changes = append(changes, &types.VirtualDeviceConfigSpec{
				Operation: types.VirtualDeviceConfigSpecOperationAdd,
				Device:    card,
			})
		}
	}
	return changes, nil
}

func diskFileName(disk *types.VirtualDisk) string {
	if b, ok := disk.Backing.(types.BaseVirtualDeviceFileBackingInfo); ok {
		return b.GetVirtualDeviceFileBackingInfo().FileName
	}
	return ""
}

// nicsMatch compares observed cards with the desired list. Unset mac
// addresses and nic types match anything.
func nicsMatch(have []esxi.NetworkInterface, want []esxi.NetworkInterface) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range want {
		if have[i].VirtualNetwork != want[i].VirtualNetwork {
			return false
		}
		if m := stringOr(want[i].MacAddress, ""); m != "" && !strings.EqualFold(m, stringOr(have[i].MacAddress, "")) {
			return false
		}
		if t := stringOr(want[i].NicType, ""); t != "" && t != stringOr(have[i].NicType, "") {
			return false
		}
	}
	return true
}

func nicOutputs(devices object.VirtualDeviceList, cards object.VirtualDeviceList) []esxi.NetworkInterface {
	nics := make([]esxi.NetworkInterface, 0, len(cards))
	for _, c := range cards {
		card := c.(types.BaseVirtualEthernetCard).GetVirtualEthernetCard()
		var network string
		if b, ok := card.Backing.(*types.VirtualEthernetCardNetworkBackingInfo); ok {
			network = b.DeviceName
		}
		mac := card.MacAddress
		nicType := devices.Type(c)
		nics = append(nics, esxi.NetworkInterface{VirtualNetwork: network, MacAddress: &mac, NicType: &nicType})
	}
	return nics
}

// setPower drives the machine to the desired power state and, when it
// powers on, waits up to startupTimeout for an IP address.
func (h *vmHandler) setPower(ctx context.Context, vm *object.VirtualMachine, args *esxi.VirtualMachineArgs) error {
	logger := ctxlog.FromContext(ctx)
	current, err := vm.PowerState(ctx)
	if err != nil {
		return err
	}

	switch desiredPower(args) {
	case esxi.PowerOn:
		if current == types.VirtualMachinePowerStatePoweredOn {
			return nil
		}
		t, err := vm.PowerOn(ctx)
		if err != nil {
			return err
		}
		if err := t.Wait(ctx); err != nil {
			return fmt.Errorf("power on: %w", err)
		}
		if timeout := intOr(args.StartupTimeout, 120); timeout > 0 {
			wctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
			defer cancel()
			if _, err := vm.WaitForIP(wctx, true); err != nil {
				logger.Warn("No IP address reported before the startup timeout.", "vm", vm.Reference().Value, "timeout_seconds", timeout)
			}
		}
	case esxi.PowerOff:
		if current == types.VirtualMachinePowerStatePoweredOff {
			return nil
		}
		return shutdown(ctx, vm, time.Duration(intOr(args.ShutdownTimeout, 20))*time.Second)
	case esxi.PowerSuspended:
		if current == types.VirtualMachinePowerStateSuspended {
			return nil
		}
		if current == types.VirtualMachinePowerStatePoweredOff {
			t, err := vm.PowerOn(ctx)
			if err != nil {
				return err
			}
			if err := t.Wait(ctx); err != nil {
				return fmt.Errorf("power on: %w", err)
			}
		}
		t, err := vm.Suspend(ctx)
		if err != nil {
			return err
		}
		if err := t.Wait(ctx); err != nil {
			return fmt.Errorf("suspend: %w", err)
		}
	}
	return nil
}

// shutdown asks the guest to shut down and powers the machine off if it
// has not stopped within timeout.
func shutdown(ctx context.Context, vm *object.VirtualMachine, timeout time.Duration) error {
	if timeout > 0 {
		if err := vm.ShutdownGuest(ctx); err == nil {
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := vm.WaitForPowerState(wctx, types.VirtualMachinePowerStatePoweredOff)
			cancel()
			if err == nil {
				return nil
			}
		}
	}
	state, err := vm.PowerState(ctx)
	if err != nil {
		return err
	}
	if state == types.VirtualMachinePowerStatePoweredOff {
		return nil
	}
	t, err := vm.PowerOff(ctx)
	if err != nil {
		return err
	}
	if err := t.Wait(ctx); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	return nil
}

func (h *vmHandler) delete(ctx context.Context, id string) error {
	vm := h.p.vmByID(id)
	state, err := vm.PowerState(ctx)
	if err != nil {
		return err
	}
	if state != types.VirtualMachinePowerStatePoweredOff {
		t, err := vm.PowerOff(ctx)
		if err != nil {
			return err
		}
		if err := t.Wait(ctx); err != nil {
			return fmt.Errorf("power off: %w", err)
		}
	}
	t, err := vm.Destroy(ctx)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// merged overlays the observed outputs on the requested inputs, so inputs
// the host does not report still resolve for dependents.
func (h *vmHandler) merged(ctx context.Context, vm *object.VirtualMachine, inputs property.Bag) (property.Bag, error) {
	observed, err := h.outputs(ctx, vm)
	if err != nil {
		return nil, err
	}
	out := inputs.Clone()
	for k, v := range observed {
		out[k] = v
	}
	return out, nil
}

func (h *vmHandler) outputs(ctx context.Context, vm *object.VirtualMachine) (property.Bag, error) {
	var mvm mo.VirtualMachine
	props := []string{"name", "config", "runtime.powerState", "guest.ipAddress", "resourcePool", "datastore"}
	if err := vm.Properties(ctx, vm.Reference(), props, &mvm); err != nil {
		return nil, err
	}

	out := property.Bag{
		"name":      property.String(mvm.Name),
		"power":     property.String(string(powerFromVim(mvm.Runtime.PowerState))),
		"ipAddress": property.String(""),
	}
	if mvm.Guest != nil {
		out["ipAddress"] = property.String(mvm.Guest.IpAddress)
	}
	if mvm.ResourcePool != nil {
		if name, err := h.p.poolName(ctx, *mvm.ResourcePool); err == nil {
			out["resourcePoolName"] = property.String(name)
		}
	}
	if len(mvm.Datastore) > 0 {
		if name, err := object.NewDatastore(h.p.client, mvm.Datastore[0]).ObjectName(ctx); err == nil {
			out["diskStore"] = property.String(name)
		}
	}

	if cfg := mvm.Config; cfg != nil {
		out["numVCpus"] = property.Int(int64(cfg.Hardware.NumCPU))
		out["memSize"] = property.Int(int64(cfg.Hardware.MemoryMB))
		out["os"] = property.String(osName(cfg.GuestId))
		out["notes"] = property.String(cfg.Annotation)
		if cfg.Firmware != "" {
			out["bootFirmware"] = property.String(cfg.Firmware)
		}
		if hw, err := strconv.Atoi(strings.TrimPrefix(cfg.Version, "vmx-")); err == nil {
			out["virtualHWVer"] = property.Int(int64(hw))
		}

		devices := object.VirtualDeviceList(cfg.Hardware.Device)
		if disks := devices.SelectByType((*types.VirtualDisk)(nil)); len(disks) > 0 {
			boot := disks[0].(*types.VirtualDisk)
			out["bootDiskSize"] = property.Int(boot.CapacityInKB / gb)
			out["bootDiskType"] = property.String(string(backingType(boot)))
		}
		nics := nicOutputs(devices, devices.SelectByType((*types.VirtualEthernetCard)(nil)))
		list := make([]property.Value, 0, len(nics))
		for _, ni := range nics {
			list = append(list, property.Map(map[string]property.Value{
				"virtualNetwork": property.String(ni.VirtualNetwork),
				"macAddress":     property.String(stringOr(ni.MacAddress, "")),
				"nicType":        property.String(stringOr(ni.NicType, "")),
			}))
		}
		out["networkInterfaces"] = property.List(list...)
	}
	return out, nil
}

func powerFromVim(s types.VirtualMachinePowerState) esxi.PowerState {
	switch s {
	case types.VirtualMachinePowerStatePoweredOn:
		return esxi.PowerOn
	case types.VirtualMachinePowerStateSuspended:
		return esxi.PowerSuspended
	default:
		return esxi.PowerOff
	}
}
