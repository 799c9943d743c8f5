package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStack(t *testing.T) {
	s := NewStack()
	pool1 := s.Resource("esxi_resource_pool", "pool1", nil)
	pool2 := s.Resource("esxi_resource_pool", "pool2", property.Bag{
		"name": property.RefValue(pool1.Output("name")),
	}, ReplaceWith(CreateBeforeDelete), Timeouts(time.Minute, 0, 0))
	s.Data("esxi_virtual_machine", "existing", property.Bag{"name": property.String("vm01")}, DependsOn(pool2))

	m, err := s.Model()
	require.NoError(t, err)
	require.Len(t, m.Resources, 3)

	r, ok := m.Resource("pool2")
	require.True(t, ok)
	assert.Equal(t, "esxi_resource_pool.pool2", r.Address())
	assert.Equal(t, []property.Reference{{Resource: "pool1", Output: "name"}}, r.References())
	assert.Equal(t, CreateBeforeDelete, r.Lifecycle.ReplaceOrder)
	assert.Equal(t, time.Minute, r.Lifecycle.CreateTimeout)

	data, _ := m.Resource("existing")
	assert.Equal(t, DataMode, data.Mode)
	assert.Equal(t, []string{"pool2"}, data.DependsOn)
	assert.Equal(t, "data.esxi_virtual_machine.existing", data.Address())
	assert.NoError(t, m.CheckNames())
}

func TestStackDuplicateName(t *testing.T) {
	s := NewStack()
	s.Resource("esxi_resource_pool", "pool1", nil)
	s.Resource("esxi_virtual_switch", "pool1", nil)

	_, err := s.Model()
	assert.ErrorContains(t, err, `"pool1" is declared twice`)
}

func TestCheckNames(t *testing.T) {
	m := &Model{Resources: []*Resource{
		{Type: "esxi_resource_pool", Name: "a", DeclRange: "main.hcl:1,1-10"},
		{Type: "esxi_virtual_switch", Name: "a"},
	}}
	var dup *DuplicateNameError
	require.True(t, errors.As(m.CheckNames(), &dup))
	assert.Equal(t, "a", dup.Name)
	assert.Contains(t, dup.Error(), "main.hcl:1,1-10")
}

func TestEvaluateInputs(t *testing.T) {
	inputs := Inputs(property.Bag{
		"name": property.String("vm01"),
		"disks": property.List(property.Map(map[string]property.Value{
			"virtualDiskId": property.Ref("disk1", "id"),
		})),
	})
	scope := ScopeFunc(func(_ context.Context, ref property.Reference) (property.Value, error) {
		if ref.Resource == "disk1" {
			return property.String("ds1/disk1.vmdk"), nil
		}
		return property.Value{}, errors.New("not realized")
	})

	bag, err := EvaluateInputs(context.Background(), inputs, scope)
	require.NoError(t, err)
	assert.True(t, bag.IsResolved())
	id, _ := bag["disks"].Index(0).Get("virtualDiskId")
	assert.Equal(t, "ds1/disk1.vmdk", id.AsString())

	_, err = EvaluateInputs(context.Background(), Inputs(property.Bag{"x": property.Ref("nope", "id")}), scope)
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "x", evalErr.Input)
}

func TestParseReplaceOrder(t *testing.T) {
	o, err := ParseReplaceOrder("")
	require.NoError(t, err)
	assert.Equal(t, DeleteBeforeCreate, o)

	o, err = ParseReplaceOrder("create_before_delete")
	require.NoError(t, err)
	assert.Equal(t, "create_before_delete", o.String())

	_, err = ParseReplaceOrder("sideways")
	assert.Error(t, err)
}
