package vsphere

import (
	"context"
	"testing"

	"github.com/specialistvlad/esxigrid/internal/esxi"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

// withESX runs fn against a simulated standalone ESXi host.
func withESX(t *testing.T, fn func(ctx context.Context, p *Provider)) {
	t.Helper()
	model := simulator.ESX()
	err := model.Run(func(ctx context.Context, c *vim25.Client) error {
		p, err := New(ctx, c)
		require.NoError(t, err)
		fn(ctx, p)
		return nil
	})
	require.NoError(t, err)
}

func TestResourcePoolLifecycle(t *testing.T) {
	withESX(t, func(ctx context.Context, p *Provider) {
		inputs := property.Bag{
			"name":      property.String("grid-pool"),
			"cpuMin":    property.Int(100),
			"cpuShares": property.String("normal"),
			"memMin":    property.Int(200),
		}
		id, out, err := p.Create(ctx, kindResourcePool, "pool1", inputs)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.Equal(t, "grid-pool", out["name"].AsString())
		assert.Equal(t, float64(100), out["cpuMin"].AsNumber())

		childID, out, err := p.Create(ctx, kindResourcePool, "pool2", property.Bag{"name": property.String("grid-pool/child")})
		require.NoError(t, err)
		assert.Equal(t, "grid-pool/child", out["name"].AsString())

		again, _, err := p.Create(ctx, kindResourcePool, "pool1", inputs)
		require.NoError(t, err)
		assert.Equal(t, id, again, "a re-issued create adopts the existing pool")

		updated := inputs.Clone()
		updated["cpuShares"] = property.String("high")
		out, err = p.Update(ctx, kindResourcePool, id, updated)
		require.NoError(t, err)
		assert.Equal(t, "high", out["cpuShares"].AsString())

		require.NoError(t, p.Delete(ctx, kindResourcePool, childID))
		require.NoError(t, p.Delete(ctx, kindResourcePool, id))

		_, err = p.Read(ctx, kindResourcePool, id)
		assert.ErrorIs(t, err, provider.ErrNotFound)
		assert.NoError(t, p.Delete(ctx, kindResourcePool, id), "deleting a missing pool succeeds")
	})
}

func TestVirtualSwitchAndPortGroup(t *testing.T) {
	withESX(t, func(ctx context.Context, p *Provider) {
		id, out, err := p.Create(ctx, kindVirtualSwitch, "sw", property.Bag{
			"name":  property.String("grid-sw"),
			"ports": property.Int(64),
			"mtu":   property.Int(1500),
		})
		require.NoError(t, err)
		assert.Equal(t, "grid-sw", id)
		assert.Equal(t, "grid-sw", out["name"].AsString())

		pgID, out, err := p.Create(ctx, kindPortGroup, "pg", property.Bag{
			"name":    property.String("grid-pg"),
			"vSwitch": property.String("grid-sw"),
			"vlan":    property.Int(10),
		})
		require.NoError(t, err)
		assert.Equal(t, "grid-pg", pgID)
		assert.Equal(t, "grid-sw", out["vSwitch"].AsString())
		assert.Equal(t, float64(10), out["vlan"].AsNumber())

		require.NoError(t, p.Delete(ctx, kindPortGroup, pgID))
		_, err = p.Read(ctx, kindPortGroup, pgID)
		assert.ErrorIs(t, err, provider.ErrNotFound)

		require.NoError(t, p.Delete(ctx, kindVirtualSwitch, id))
		_, err = p.Read(ctx, kindVirtualSwitch, id)
		assert.ErrorIs(t, err, provider.ErrNotFound)
	})
}

func TestVirtualMachineLifecycle(t *testing.T) {
	withESX(t, func(ctx context.Context, p *Provider) {
		inputs := property.Bag{
			"name":             property.String("grid-vm"),
			"diskStore":        property.String("LocalDS_0"),
			"resourcePoolName": property.String("/"),
			"bootDiskSize":     property.Int(1),
			"numVCpus":         property.Int(1),
			"memSize":          property.Int(512),
			"os":               property.String("centos"),
			"power":            property.String("off"),
			"startupTimeout":   property.Int(0),
			"shutdownTimeout":  property.Int(0),
			"networkInterfaces": property.List(property.Map(map[string]property.Value{
				"virtualNetwork": property.String("VM Network"),
			})),
		}
		id, out, err := p.Create(ctx, kindVirtualMachine, "vm1", inputs)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.Equal(t, "off", out["power"].AsString())
		assert.Equal(t, "/", out["resourcePoolName"].AsString())

		found, err := p.Invoke(ctx, lookupVMByName, property.Bag{"name": property.String("grid-vm")})
		require.NoError(t, err)
		assert.Equal(t, id, found["id"].AsString())
		assert.Equal(t, float64(512), found["memSize"].AsNumber())

		var vm esxi.VirtualMachine
		require.NoError(t, property.Decode(found, &vm))
		require.Len(t, vm.NetworkInterfaces, 1)
		assert.Equal(t, "VM Network", vm.NetworkInterfaces[0].VirtualNetwork)

		updated := inputs.Clone()
		updated["memSize"] = property.Int(1024)
		updated["power"] = property.String("on")
		out, err = p.Update(ctx, kindVirtualMachine, id, updated)
		require.NoError(t, err)
		assert.Equal(t, float64(1024), out["memSize"].AsNumber())
		assert.Equal(t, "on", out["power"].AsString())

		require.NoError(t, p.Delete(ctx, kindVirtualMachine, id))
		_, err = p.Invoke(ctx, lookupVMByID, property.Bag{"id": property.String(id)})
		assert.ErrorIs(t, err, provider.ErrNotFound)
	})
}

func TestVirtualDiskLifecycle(t *testing.T) {
	withESX(t, func(ctx context.Context, p *Provider) {
		id, _, err := p.Create(ctx, kindVirtualDisk, "disk1", property.Bag{
			"name":      property.String("data"),
			"diskStore": property.String("LocalDS_0"),
			"directory": property.String("grid"),
			"diskType":  property.String("thin"),
			"size":      property.Int(1),
		})
		require.NoError(t, err)
		assert.Equal(t, "[LocalDS_0] grid/data.vmdk", id)

		out, err := p.Read(ctx, kindVirtualDisk, id)
		require.NoError(t, err)
		assert.Equal(t, "data", out["name"].AsString())

		require.NoError(t, p.Delete(ctx, kindVirtualDisk, id))
		_, err = p.Read(ctx, kindVirtualDisk, id)
		assert.ErrorIs(t, err, provider.ErrNotFound)
	})
}

func TestUnsupportedRequests(t *testing.T) {
	withESX(t, func(ctx context.Context, p *Provider) {
		_, _, err := p.Create(ctx, kindVirtualMachine, "vm1", property.Bag{
			"name":       property.String("ova-vm"),
			"diskStore":  property.String("LocalDS_0"),
			"sourcePath": property.String("/tmp/appliance.ova"),
		})
		assert.ErrorIs(t, err, provider.ErrUnsupported)

		_, _, err = p.Create(ctx, "esxi_cluster", "c", property.Bag{})
		assert.ErrorIs(t, err, provider.ErrUnsupported)

		_, err = p.Invoke(ctx, "esxi_datastore", property.Bag{})
		assert.ErrorIs(t, err, provider.ErrUnsupported)
	})
}

func TestDiskPath(t *testing.T) {
	t.Parallel()

	id := diskPath("ds1", "vms/web", "data")
	assert.Equal(t, "[ds1] vms/web/data.vmdk", id)

	store, dir, name, err := parseDiskPath(id)
	require.NoError(t, err)
	assert.Equal(t, "ds1", store)
	assert.Equal(t, "vms/web", dir)
	assert.Equal(t, "data", name)

	_, _, _, err = parseDiskPath("not a path")
	assert.Error(t, err)
}

func TestGuestID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "centos64Guest", guestID("centos"))
	assert.Equal(t, "otherGuest", guestID("otherGuest"))
	assert.Equal(t, "centos", osName("centos64Guest"))
	assert.Equal(t, "otherGuest", osName("otherGuest"))
}

func TestAllocation(t *testing.T) {
	t.Parallel()

	minimum, shares, expandable := 100, "2000", "false"
	a, err := allocation(&minimum, &expandable, nil, &shares)
	require.NoError(t, err)
	assert.Equal(t, int64(100), *a.Reservation)
	assert.False(t, *a.ExpandableReservation)
	assert.Equal(t, int64(-1), *a.Limit)
	assert.Equal(t, types.SharesLevelCustom, a.Shares.Level)
	assert.Equal(t, int32(2000), a.Shares.Shares)

	bad := "lots"
	_, err = allocation(nil, nil, nil, &bad)
	assert.Error(t, err)
}

func TestNicsMatch(t *testing.T) {
	t.Parallel()

	mac, vmxnet := "00:50:56:aa:bb:cc", "vmxnet3"
	have := []esxi.NetworkInterface{{VirtualNetwork: "VM Network", MacAddress: &mac, NicType: &vmxnet}}

	assert.True(t, nicsMatch(have, []esxi.NetworkInterface{{VirtualNetwork: "VM Network"}}))
	e1000 := "e1000"
	assert.False(t, nicsMatch(have, []esxi.NetworkInterface{{VirtualNetwork: "VM Network", NicType: &e1000}}))
	assert.False(t, nicsMatch(have, []esxi.NetworkInterface{{VirtualNetwork: "Other"}}))
	assert.False(t, nicsMatch(have, nil))
}
