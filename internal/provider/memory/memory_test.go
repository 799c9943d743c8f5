package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIsIdempotentByName(t *testing.T) {
	p := New()
	ctx := context.Background()
	inputs := property.Bag{"name": property.String("pool1"), "cpuMin": property.Int(100)}

	id1, out1, err := p.Create(ctx, "esxi_resource_pool", "pool1", inputs)
	require.NoError(t, err)
	id2, out2, err := p.Create(ctx, "esxi_resource_pool", "pool1", inputs)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.True(t, out1.Equal(out2))
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 2, p.Count(provider.OpCreate))
}

func TestReadUpdateDelete(t *testing.T) {
	p := New()
	ctx := context.Background()

	id, _, err := p.Create(ctx, "esxi_virtual_switch", "vs", property.Bag{"name": property.String("vSwitch1")})
	require.NoError(t, err)

	out, err := p.Update(ctx, "esxi_virtual_switch", id, property.Bag{"name": property.String("vSwitch1"), "mtu": property.Int(9000)})
	require.NoError(t, err)
	assert.Equal(t, 9000.0, out["mtu"].AsNumber())

	read, err := p.Read(ctx, "esxi_virtual_switch", id)
	require.NoError(t, err)
	assert.True(t, read.Equal(out))

	require.NoError(t, p.Delete(ctx, "esxi_virtual_switch", id))
	require.NoError(t, p.Delete(ctx, "esxi_virtual_switch", id), "deleting twice is not an error")

	_, err = p.Read(ctx, "esxi_virtual_switch", id)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
	_, err = p.Update(ctx, "esxi_virtual_switch", id, nil)
	assert.True(t, errors.Is(err, provider.ErrNotFound))

	calls := p.Calls()
	require.Len(t, calls, 7)
	assert.Equal(t, Call{Operation: provider.OpCreate, Kind: "esxi_virtual_switch", Name: "vs"}, calls[0])
	assert.Equal(t, "vs", calls[1].Name)
}

func TestUnknownKind(t *testing.T) {
	p := New()
	_, _, err := p.Create(context.Background(), "esxi_datacenter", "dc", nil)
	var unknown *provider.UnknownKindError
	assert.True(t, errors.As(err, &unknown))
	assert.Empty(t, p.Calls())
}

func TestVirtualMachineLookups(t *testing.T) {
	p := New()
	ctx := context.Background()
	id := p.Seed("esxi_virtual_machine", property.Bag{"name": property.String("vm01"), "memSize": property.Int(512)})

	byName, err := p.Invoke(ctx, "esxi_virtual_machine", property.Bag{"name": property.String("vm01")})
	require.NoError(t, err)
	assert.Equal(t, id, byName["id"].AsString())
	assert.Equal(t, "192.0.2.1", byName["ipAddress"].AsString())

	byID, err := p.Invoke(ctx, "esxi_virtual_machine_by_id", property.Bag{"id": property.String(id)})
	require.NoError(t, err)
	assert.True(t, byName.Equal(byID))

	_, err = p.Invoke(ctx, "esxi_virtual_machine", property.Bag{"name": property.String("vm02")})
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

func TestPoweredOffMachineHasNoAddress(t *testing.T) {
	p := New()
	_, out, err := p.Create(context.Background(), "esxi_virtual_machine", "vm", property.Bag{
		"name":  property.String("vm01"),
		"power": property.String("off"),
	})
	require.NoError(t, err)
	assert.Equal(t, "", out["ipAddress"].AsString())
}

func TestFailureAndDelayHooks(t *testing.T) {
	boom := errors.New("boom")
	p := New(
		WithFailure(func(c Call) error {
			if c.Operation == provider.OpCreate && c.Name == "bad" {
				return boom
			}
			return nil
		}),
		WithDelay(func(c Call) time.Duration {
			if c.Name == "slow" {
				return time.Hour
			}
			return 0
		}),
	)

	_, _, err := p.Create(context.Background(), "esxi_resource_pool", "bad", property.Bag{"name": property.String("bad")})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = p.Create(ctx, "esxi_resource_pool", "slow", property.Bag{"name": property.String("slow")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p.Len())
}

func TestDiffUsesHostRules(t *testing.T) {
	p := New()
	d, err := p.Diff(context.Background(), "esxi_virtual_disk", "id",
		property.Bag{"diskType": property.String("thin")},
		property.Bag{"diskType": property.String("eagerzeroedthick")})
	require.NoError(t, err)
	assert.Equal(t, provider.RequiresReplacement, d.Result)
}
