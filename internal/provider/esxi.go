package provider

import "github.com/specialistvlad/esxigrid/internal/property"

// replaceKeys lists, per kind, the inputs ESXi cannot change in place.
var replaceKeys = map[string][]string{
	"esxi_virtual_machine": {"diskStore", "bootDiskType", "sourcePath"},
	"esxi_virtual_disk":    {"diskStore", "directory", "name", "diskType"},
	"esxi_virtual_switch":  {"name"},
	"esxi_port_group":      {"name", "vSwitch"},
}

// growOnlyKeys are sizes that can be extended in place but not shrunk.
var growOnlyKeys = map[string]string{
	"esxi_virtual_machine": "bootDiskSize",
	"esxi_virtual_disk":    "size",
}

// DiffESXi classifies a change using the host's in-place update rules.
func DiffESXi(kind string, olds, news property.Bag) Diff {
	d := DiffByKeys(olds, news, replaceKeys[kind]...)
	key, ok := growOnlyKeys[kind]
	if !ok || d.Result == NoChange {
		return d
	}
	before, hadBefore := olds[key]
	after, hasAfter := news[key]
	if !hadBefore || !hasAfter || before.Kind() != property.KindNumber || after.Kind() != property.KindNumber {
		return d
	}
	if after.AsNumber() < before.AsNumber() {
		d.ReplaceKeys = append(d.ReplaceKeys, key)
		d.Result = RequiresReplacement
	}
	return d
}
