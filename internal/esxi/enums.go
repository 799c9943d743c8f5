package esxi

// DiskType is the provisioning format of a virtual disk.
type DiskType string

const (
	DiskTypeThin             DiskType = "thin"
	DiskTypeZeroedThick      DiskType = "zeroedthick"
	DiskTypeEagerZeroedThick DiskType = "eagerzeroedthick"
)

func (DiskType) EnumValues() []string {
	return []string{string(DiskTypeThin), string(DiskTypeZeroedThick), string(DiskTypeEagerZeroedThick)}
}

// BootFirmware selects the virtual machine firmware.
type BootFirmware string

const (
	BootFirmwareBIOS BootFirmware = "bios"
	BootFirmwareEFI  BootFirmware = "efi"
)

func (BootFirmware) EnumValues() []string {
	return []string{string(BootFirmwareBIOS), string(BootFirmwareEFI)}
}

// PowerState is the desired power state of a virtual machine.
type PowerState string

const (
	PowerOn        PowerState = "on"
	PowerOff       PowerState = "off"
	PowerSuspended PowerState = "suspended"
)

func (PowerState) EnumValues() []string {
	return []string{string(PowerOn), string(PowerOff), string(PowerSuspended)}
}

// LinkDiscoveryMode is the CDP operation of a virtual switch.
type LinkDiscoveryMode string

const (
	LinkDiscoveryDown      LinkDiscoveryMode = "down"
	LinkDiscoveryListen    LinkDiscoveryMode = "listen"
	LinkDiscoveryAdvertise LinkDiscoveryMode = "advertise"
	LinkDiscoveryBoth      LinkDiscoveryMode = "both"
)

func (LinkDiscoveryMode) EnumValues() []string {
	return []string{
		string(LinkDiscoveryDown),
		string(LinkDiscoveryListen),
		string(LinkDiscoveryAdvertise),
		string(LinkDiscoveryBoth),
	}
}
