package esxi

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider/memory"
	"github.com/specialistvlad/esxigrid/internal/schema"
	"github.com/specialistvlad/esxigrid/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestDeclareEncodesArgs(t *testing.T) {
	s := config.NewStack()
	pool1, err := Declare(s, "pool1", &ResourcePoolArgs{})
	require.NoError(t, err)
	_, err = Declare(s, "vm", &VirtualMachineArgs{
		Name:             property.Set("vm01"),
		DiskStore:        property.Set("datastore1"),
		ResourcePoolName: property.From[string](pool1.Output("name")),
		BootFirmware:     ptr(BootFirmwareEFI),
		Notes:            ptr(""),
		NetworkInterfaces: []NetworkInterface{
			{VirtualNetwork: "VM Network"},
		},
	}, config.ReplaceWith(config.CreateBeforeDelete))
	require.NoError(t, err)

	m, err := s.Model()
	require.NoError(t, err)
	require.Len(t, m.Resources, 2)
	assert.Empty(t, m.Resources[0].Inputs, "unset fields leave room for defaults")

	vm := m.Resources[1]
	assert.Equal(t, "esxi_virtual_machine", vm.Type)
	assert.Equal(t, config.CreateBeforeDelete, vm.Lifecycle.ReplaceOrder)
	assert.Equal(t, []property.Reference{{Resource: "pool1", Output: "name"}}, vm.References())
	assert.Contains(t, vm.Inputs, "notes", "explicit empty string is kept")
	assert.NotContains(t, vm.Inputs, "memSize")
}

func TestDeclareRejectsUnknownEnum(t *testing.T) {
	s := config.NewStack()
	_, err := Declare(s, "disk", &VirtualDiskArgs{
		DiskStore: property.Set("ds1"),
		Directory: property.Set("d"),
		DiskType:  ptr(DiskType("sparse")),
	})
	var enumErr *property.UnknownEnumValueError
	require.True(t, errors.As(err, &enumErr))
	assert.Equal(t, "sparse", enumErr.Value)
}

func TestDeclareLeavesOmittedDiskTypeToValidation(t *testing.T) {
	ctx := context.Background()
	s := config.NewStack()
	_, err := Declare(s, "disk", &VirtualDiskArgs{
		DiskStore: property.Set("ds1"),
		Directory: property.Set("d"),
	})
	require.NoError(t, err)
	m, err := s.Model()
	require.NoError(t, err)
	assert.NotContains(t, m.Resources[0].Inputs, "diskType")

	store, err := state.Open(ctx, state.DriverSQLite, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	res, err := engine.New(memory.New(), store).Apply(ctx, m)
	assert.Nil(t, res)
	var missing *schema.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "diskType", missing.Field)
	assert.Equal(t, "esxi_virtual_disk", missing.Kind)
}

func TestTypedStackAppliesAndDecodes(t *testing.T) {
	ctx := context.Background()
	store, err := state.Open(ctx, state.DriverSQLite, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()
	p := memory.New()
	p.Seed("esxi_virtual_machine", property.Bag{
		"name":      property.String("template"),
		"diskStore": property.String("datastore1"),
		"memSize":   property.Int(2048),
	})

	s := config.NewStack()
	tmpl, err := Lookup(s, "template", &GetVirtualMachineArgs{Name: property.Set("template")})
	require.NoError(t, err)
	vs, err := Declare(s, "vs", &VirtualSwitchArgs{Name: property.Set("vSwitch1"), MTU: ptr(9000)})
	require.NoError(t, err)
	pg, err := Declare(s, "pg", &PortGroupArgs{
		Name:    property.Set("pg1"),
		VSwitch: property.From[string](vs.Output("name")),
	})
	require.NoError(t, err)
	_, err = Declare(s, "vm", &VirtualMachineArgs{
		Name:      property.Set("vm01"),
		DiskStore: property.From[string](tmpl.Output("diskStore")),
		Power:     ptr(PowerOn),
		NetworkInterfaces: []NetworkInterface{
			{VirtualNetwork: "pg1"},
		},
	}, config.DependsOn(pg))
	require.NoError(t, err)
	m, err := s.Model()
	require.NoError(t, err)

	res, err := engine.New(p, store).Apply(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary().Created)

	o, ok := res.Outcome("vm")
	require.True(t, ok)
	vm, err := DecodeOutputs[VirtualMachine](o.Outputs)
	require.NoError(t, err)
	assert.Equal(t, "vm01", vm.Name)
	assert.Equal(t, "datastore1", vm.DiskStore)
	assert.Equal(t, 512, vm.MemSize)
	assert.Equal(t, BootFirmwareBIOS, vm.BootFirmware)
	assert.Equal(t, PowerOn, vm.Power)
	assert.NotEmpty(t, vm.IPAddress)
	require.Len(t, vm.NetworkInterfaces, 1)
	assert.Equal(t, "pg1", vm.NetworkInterfaces[0].VirtualNetwork)
}
