package schema

import (
	"errors"
	"regexp"
	"testing"

	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func mustResource(t *testing.T, typ string) *Kind {
	t.Helper()
	k, ok := Builtin().Resource(typ)
	require.True(t, ok, "kind %s not in builtin table", typ)
	return k
}

func TestBuiltinTable(t *testing.T) {
	table := Builtin()
	assert.Same(t, table, Builtin(), "builtin table must be loaded once")
	assert.Equal(t, []string{
		"esxi_port_group",
		"esxi_resource_pool",
		"esxi_virtual_disk",
		"esxi_virtual_machine",
		"esxi_virtual_switch",
	}, table.ResourceTypes())
	assert.Equal(t, []string{"esxi_virtual_machine", "esxi_virtual_machine_by_id"}, table.LookupTypes())

	k, ok := table.ByToken("esxi-native:index:getVirtualMachine")
	require.True(t, ok)
	assert.True(t, k.Lookup)

	vm := mustResource(t, "esxi_virtual_machine")
	nics, ok := vm.Input("networkInterfaces")
	require.True(t, ok)
	assert.True(t, nics.Type.IsListType())
	assert.Equal(t, cty.String, nics.Type.ElementType().AttributeType("virtualNetwork"))
}

func TestApplyDefaults(t *testing.T) {
	t.Run("resource pool", func(t *testing.T) {
		pool := mustResource(t, "esxi_resource_pool")
		in := property.Bag{"name": property.String("pool1")}

		got := pool.ApplyDefaults(in)

		want := property.Bag{
			"name":             property.String("pool1"),
			"cpuMin":           property.Int(100),
			"cpuMinExpandable": property.String("true"),
			"cpuShares":        property.String("normal"),
			"memMin":           property.Int(200),
			"memMinExpandable": property.String("true"),
			"memShares":        property.String("normal"),
		}
		assert.True(t, want.Equal(got), "got %v", got)
		assert.Len(t, in, 1, "input bag must not be modified")
	})

	t.Run("caller values win", func(t *testing.T) {
		disk := mustResource(t, "esxi_virtual_disk")
		got := disk.ApplyDefaults(property.Bag{"size": property.Int(40)})
		assert.Equal(t, property.Int(40), got["size"])
	})

	t.Run("explicit null is kept", func(t *testing.T) {
		disk := mustResource(t, "esxi_virtual_disk")
		got := disk.ApplyDefaults(property.Bag{"size": property.Null()})
		assert.True(t, got["size"].IsNull())
	})

	t.Run("virtual machine", func(t *testing.T) {
		got := mustResource(t, "esxi_virtual_machine").Defaults()
		assert.Equal(t, property.Int(16), got["bootDiskSize"])
		assert.Equal(t, property.String("thin"), got["bootDiskType"])
		assert.Equal(t, property.Int(512), got["memSize"])
		assert.Equal(t, property.Int(1), got["numVCpus"])
		assert.Equal(t, property.Int(13), got["virtualHWVer"])
		assert.Equal(t, property.String("centos"), got["os"])
		assert.Equal(t, property.Int(120), got["startupTimeout"])
		assert.Equal(t, property.Int(20), got["shutdownTimeout"])
		assert.Equal(t, property.Int(90), got["ovfPropertiesTimer"])
	})

	t.Run("switch and port group", func(t *testing.T) {
		sw := mustResource(t, "esxi_virtual_switch").Defaults()
		assert.Equal(t, property.Int(128), sw["ports"])
		assert.Equal(t, property.Int(1500), sw["mtu"])
		assert.Equal(t, property.String("listen"), sw["linkDiscoveryMode"])

		pg := mustResource(t, "esxi_port_group").Defaults()
		assert.Equal(t, property.Int(0), pg["vlan"])
	})
}

func TestValidate(t *testing.T) {
	disk := mustResource(t, "esxi_virtual_disk")

	t.Run("missing required fields", func(t *testing.T) {
		err := disk.Validate(disk.ApplyDefaults(property.Bag{"name": property.String("d1")}))
		require.Error(t, err)

		var missing *MissingRequiredFieldError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "esxi_virtual_disk", missing.Kind)
		assert.ErrorContains(t, err, `"diskStore"`)
		assert.ErrorContains(t, err, `"directory"`)
		assert.ErrorContains(t, err, `"diskType"`)
	})

	t.Run("reference counts as present", func(t *testing.T) {
		bag := property.Bag{
			"name":      property.String("d1"),
			"diskStore": property.Ref("ds", "name"),
			"directory": property.String("d1"),
			"diskType":  property.String("thin"),
		}
		assert.NoError(t, disk.Validate(disk.ApplyDefaults(bag)))
	})

	t.Run("unknown enum token", func(t *testing.T) {
		bag := property.Bag{
			"name":      property.String("d1"),
			"diskStore": property.String("ds1"),
			"directory": property.String("d1"),
			"diskType":  property.String("sparse"),
		}
		var enumErr *property.UnknownEnumValueError
		assert.True(t, errors.As(disk.Validate(bag), &enumErr))
	})

	t.Run("schema mismatch", func(t *testing.T) {
		bag := property.Bag{
			"name":      property.String("d1"),
			"diskStore": property.String("ds1"),
			"directory": property.String("d1"),
			"diskType":  property.String("thin"),
			"size":      property.String("big"),
		}
		var mismatch *property.SchemaMismatchError
		assert.True(t, errors.As(disk.Validate(bag), &mismatch))
	})

	tests := []struct {
		name    string
		kind    string
		bag     property.Bag
		wantErr string
	}{
		{name: "custom shares", kind: "esxi_resource_pool", bag: property.Bag{"name": property.String("p"), "cpuShares": property.String("4000")}},
		{name: "bad shares", kind: "esxi_resource_pool", bag: property.Bag{"name": property.String("p"), "memShares": property.String("lots")}, wantErr: "unknown value"},
		{name: "pool name prefix", kind: "esxi_resource_pool", bag: property.Bag{"name": property.String("/p")}, wantErr: "cannot start with"},
		{name: "startup timeout range", kind: "esxi_virtual_machine", bag: property.Bag{"name": property.String("vm"), "diskStore": property.String("ds"), "startupTimeout": property.Int(601)}, wantErr: "at most 600"},
		{name: "mtu range", kind: "esxi_virtual_switch", bag: property.Bag{"name": property.String("sw"), "mtu": property.Int(100)}, wantErr: "at least 1280"},
		{name: "link discovery", kind: "esxi_virtual_switch", bag: property.Bag{"name": property.String("sw"), "linkDiscoveryMode": property.String("loud")}, wantErr: "unknown value"},
		{
			name: "nic without network",
			kind: "esxi_virtual_machine",
			bag: property.Bag{
				"name":              property.String("vm"),
				"diskStore":         property.String("ds"),
				"networkInterfaces": property.List(property.Map(map[string]property.Value{"nicType": property.String("e1000")})),
			},
			wantErr: `"networkInterfaces[0].virtualNetwork"`,
		},
		{name: "port group security inherit", kind: "esxi_port_group", bag: property.Bag{"name": property.String("pg"), "vSwitch": property.String("sw"), "macChanges": property.String("")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := mustResource(t, tc.kind)
			err := k.Validate(k.ApplyDefaults(tc.bag))
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestHasOutput(t *testing.T) {
	vm := mustResource(t, "esxi_virtual_machine")
	assert.True(t, vm.HasOutput("id"))
	assert.True(t, vm.HasOutput("ipAddress"))
	assert.True(t, vm.HasOutput("diskStore"))
	assert.False(t, vm.HasOutput("nope"))

	lookup, ok := Builtin().Lookup("esxi_virtual_machine")
	require.True(t, ok)
	assert.True(t, lookup.HasOutput("ipAddress"))
	assert.False(t, lookup.HasOutput("name"), "lookups expose only declared outputs")
	assert.Contains(t, vm.OutputNames(), "ipAddress")
}

func TestAssignName(t *testing.T) {
	pool := mustResource(t, "esxi_resource_pool")

	t.Run("generates name", func(t *testing.T) {
		got, err := pool.AssignName("pool1", property.Bag{}, nil)
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^pool1-[0-9a-f]{7}$`), got["name"].AsString())
	})

	t.Run("reuses prior name", func(t *testing.T) {
		prior := property.Bag{"name": property.String("pool1-abc1234")}
		got, err := pool.AssignName("pool1", property.Bag{}, prior)
		require.NoError(t, err)
		assert.Equal(t, "pool1-abc1234", got["name"].AsString())
	})

	t.Run("explicit name wins", func(t *testing.T) {
		in := property.Bag{"name": property.String("mine")}
		got, err := pool.AssignName("pool1", in, nil)
		require.NoError(t, err)
		assert.Equal(t, "mine", got["name"].AsString())
	})

	t.Run("kinds without auto naming", func(t *testing.T) {
		pg := mustResource(t, "esxi_port_group")
		got, err := pg.AssignName("pg", property.Bag{}, nil)
		require.NoError(t, err)
		assert.NotContains(t, got, "name")
	})

	t.Run("long names are truncated", func(t *testing.T) {
		a := &AutoName{Property: "name", MinLength: 3, MaxLength: 12}
		name, err := a.generate("averyveryverylongname")
		require.NoError(t, err)
		assert.Len(t, name, 12)
	})
}

func TestParse(t *testing.T) {
	t.Run("invalid syntax", func(t *testing.T) {
		_, err := Parse("bad.hcl", []byte(`resource "x" {`))
		assert.ErrorContains(t, err, "parsing manifest")
	})

	t.Run("default type mismatch", func(t *testing.T) {
		src := `
resource "x" {
  token = "t"
  input "n" {
    type    = number
    default = "ten"
  }
}`
		_, err := Parse("x.hcl", []byte(src))
		assert.ErrorContains(t, err, "default does not match type")
	})

	t.Run("unknown type keyword", func(t *testing.T) {
		src := `
resource "x" {
  token = "t"
  input "n" { type = decimal }
}`
		_, err := Parse("x.hcl", []byte(src))
		assert.ErrorContains(t, err, `unknown primitive type "decimal"`)
	})

	t.Run("auto name must target an input", func(t *testing.T) {
		src := `
resource "x" {
  token = "t"
  auto_name {
    min_length = 1
    max_length = 10
  }
}`
		_, err := Parse("x.hcl", []byte(src))
		assert.ErrorContains(t, err, "auto_name property")
	})
}
