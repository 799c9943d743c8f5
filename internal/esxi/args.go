package esxi

import "github.com/specialistvlad/esxigrid/internal/property"

// Args is implemented by the typed arguments of a managed kind.
type Args interface {
	// Type returns the kind's configuration type name.
	Type() string
}

// LookupArgs is implemented by the typed arguments of a lookup.
type LookupArgs interface {
	LookupType() string
}

// ResourcePoolArgs configures esxi_resource_pool. Shares accept
// low, normal, high or a custom integer written as a string.
type ResourcePoolArgs struct {
	Name             property.Input[string] `prop:"name"`
	CPUMin           *int                   `prop:"cpuMin"`
	CPUMinExpandable *string                `prop:"cpuMinExpandable"`
	CPUMax           *int                   `prop:"cpuMax"`
	CPUShares        *string                `prop:"cpuShares"`
	MemMin           *int                   `prop:"memMin"`
	MemMinExpandable *string                `prop:"memMinExpandable"`
	MemMax           *int                   `prop:"memMax"`
	MemShares        *string                `prop:"memShares"`
}

func (*ResourcePoolArgs) Type() string { return "esxi_resource_pool" }

// VirtualDiskArgs configures esxi_virtual_disk.
type VirtualDiskArgs struct {
	Name      property.Input[string] `prop:"name"`
	DiskStore property.Input[string] `prop:"diskStore"`
	Directory property.Input[string] `prop:"directory"`
	DiskType  *DiskType              `prop:"diskType"`
	// Size is in GB.
	Size *int `prop:"size"`
}

func (*VirtualDiskArgs) Type() string { return "esxi_virtual_disk" }

// NetworkInterface attaches a virtual machine to a port group.
type NetworkInterface struct {
	VirtualNetwork string  `prop:"virtualNetwork"`
	MacAddress     *string `prop:"macAddress"`
	NicType        *string `prop:"nicType"`
}

// AttachedDisk attaches a standalone virtual disk to a virtual machine.
type AttachedDisk struct {
	VirtualDiskID string  `prop:"virtualDiskId"`
	Slot          *string `prop:"slot"`
}

// KeyValue is a guestinfo or OVF property entry.
type KeyValue struct {
	Key   string `prop:"key"`
	Value string `prop:"value"`
}

// VirtualMachineArgs configures esxi_virtual_machine.
type VirtualMachineArgs struct {
	Name               property.Input[string] `prop:"name"`
	DiskStore          property.Input[string] `prop:"diskStore"`
	ResourcePoolName   property.Input[string] `prop:"resourcePoolName"`
	BootDiskSize       *int                   `prop:"bootDiskSize"`
	BootDiskType       *DiskType              `prop:"bootDiskType"`
	BootFirmware       *BootFirmware          `prop:"bootFirmware"`
	MemSize            *int                   `prop:"memSize"`
	NumVCpus           *int                   `prop:"numVCpus"`
	OS                 *string                `prop:"os"`
	VirtualHWVer       *int                   `prop:"virtualHWVer"`
	Power              *PowerState            `prop:"power"`
	Notes              *string                `prop:"notes"`
	SourcePath         *string                `prop:"sourcePath"`
	StartupTimeout     *int                   `prop:"startupTimeout"`
	ShutdownTimeout    *int                   `prop:"shutdownTimeout"`
	OvfPropertiesTimer *int                   `prop:"ovfPropertiesTimer"`
	NetworkInterfaces  []NetworkInterface     `prop:"networkInterfaces"`
	VirtualDisks       []AttachedDisk         `prop:"virtualDisks"`
	OvfProperties      []KeyValue             `prop:"ovfProperties"`
	Info               []KeyValue             `prop:"info"`
}

func (*VirtualMachineArgs) Type() string { return "esxi_virtual_machine" }

// Uplink names a physical NIC bound to a virtual switch.
type Uplink struct {
	Name string `prop:"name"`
}

// VirtualSwitchArgs configures esxi_virtual_switch.
type VirtualSwitchArgs struct {
	Name              property.Input[string] `prop:"name"`
	Ports             *int                   `prop:"ports"`
	MTU               *int                   `prop:"mtu"`
	LinkDiscoveryMode *LinkDiscoveryMode     `prop:"linkDiscoveryMode"`
	PromiscuousMode   *bool                  `prop:"promiscuousMode"`
	MacChanges        *bool                  `prop:"macChanges"`
	ForgedTransmits   *bool                  `prop:"forgedTransmits"`
	Uplinks           []Uplink               `prop:"uplinks"`
}

func (*VirtualSwitchArgs) Type() string { return "esxi_virtual_switch" }

// PortGroupArgs configures esxi_port_group. The security policies take
// "true", "false" or "" to inherit from the switch.
type PortGroupArgs struct {
	Name            property.Input[string] `prop:"name"`
	VSwitch         property.Input[string] `prop:"vSwitch"`
	VLAN            *int                   `prop:"vlan"`
	PromiscuousMode *string                `prop:"promiscuousMode"`
	MacChanges      *string                `prop:"macChanges"`
	ForgedTransmits *string                `prop:"forgedTransmits"`
}

func (*PortGroupArgs) Type() string { return "esxi_port_group" }

// GetVirtualMachineArgs looks a virtual machine up by name.
type GetVirtualMachineArgs struct {
	Name property.Input[string] `prop:"name"`
}

func (*GetVirtualMachineArgs) LookupType() string { return "esxi_virtual_machine" }

// GetVirtualMachineByIDArgs looks a virtual machine up by managed object id.
type GetVirtualMachineByIDArgs struct {
	ID property.Input[string] `prop:"id"`
}

func (*GetVirtualMachineByIDArgs) LookupType() string { return "esxi_virtual_machine_by_id" }

// VirtualMachine is the decoded output of a virtual machine or a lookup.
type VirtualMachine struct {
	ID                string             `prop:"id"`
	Name              string             `prop:"name"`
	DiskStore         string             `prop:"diskStore"`
	ResourcePoolName  string             `prop:"resourcePoolName"`
	BootDiskSize      int                `prop:"bootDiskSize"`
	BootDiskType      DiskType           `prop:"bootDiskType"`
	BootFirmware      BootFirmware       `prop:"bootFirmware"`
	MemSize           int                `prop:"memSize"`
	NumVCpus          int                `prop:"numVCpus"`
	OS                string             `prop:"os"`
	Power             PowerState         `prop:"power"`
	IPAddress         string             `prop:"ipAddress"`
	Notes             string             `prop:"notes"`
	NetworkInterfaces []NetworkInterface `prop:"networkInterfaces"`
}
