package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/esxigrid/internal/metrics"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffESXi(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		kind    string
		olds    property.Bag
		news    property.Bag
		result  DiffResult
		replace []string
	}{
		{
			name:   "unchanged",
			kind:   "esxi_resource_pool",
			olds:   property.Bag{"name": property.String("pool1")},
			news:   property.Bag{"name": property.String("pool1")},
			result: NoChange,
		},
		{
			name:   "pool rename is updatable",
			kind:   "esxi_resource_pool",
			olds:   property.Bag{"name": property.String("pool1")},
			news:   property.Bag{"name": property.String("pool9")},
			result: Updatable,
		},
		{
			name:    "disk type forces replacement",
			kind:    "esxi_virtual_disk",
			olds:    property.Bag{"diskType": property.String("thin"), "size": property.Int(1)},
			news:    property.Bag{"diskType": property.String("zeroedthick"), "size": property.Int(1)},
			result:  RequiresReplacement,
			replace: []string{"diskType"},
		},
		{
			name:   "disk growth is updatable",
			kind:   "esxi_virtual_disk",
			olds:   property.Bag{"size": property.Int(1)},
			news:   property.Bag{"size": property.Int(4)},
			result: Updatable,
		},
		{
			name:    "disk shrink forces replacement",
			kind:    "esxi_virtual_disk",
			olds:    property.Bag{"size": property.Int(4)},
			news:    property.Bag{"size": property.Int(2)},
			result:  RequiresReplacement,
			replace: []string{"size"},
		},
		{
			name:    "port group moved to another switch",
			kind:    "esxi_port_group",
			olds:    property.Bag{"vSwitch": property.String("a"), "vlan": property.Int(0)},
			news:    property.Bag{"vSwitch": property.String("b"), "vlan": property.Int(10)},
			result:  RequiresReplacement,
			replace: []string{"vSwitch"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := DiffESXi(tc.kind, tc.olds, tc.news)
			assert.Equal(t, tc.result, d.Result, d.Result.String())
			assert.Equal(t, tc.replace, d.ReplaceKeys)
		})
	}
}

type stubProvider struct {
	err error
}

func (s *stubProvider) Create(context.Context, string, string, property.Bag) (string, property.Bag, error) {
	return "id-1", property.Bag{}, s.err
}
func (s *stubProvider) Read(context.Context, string, string) (property.Bag, error) { return nil, s.err }
func (s *stubProvider) Update(context.Context, string, string, property.Bag) (property.Bag, error) {
	return nil, s.err
}
func (s *stubProvider) Delete(context.Context, string, string) error { return s.err }
func (s *stubProvider) Diff(context.Context, string, string, property.Bag, property.Bag) (Diff, error) {
	return Diff{}, s.err
}
func (s *stubProvider) Invoke(context.Context, string, property.Bag) (property.Bag, error) {
	return nil, s.err
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ctx := context.Background()

	ok := Instrument(&stubProvider{}, m)
	id, _, err := ok.Create(ctx, "esxi_resource_pool", "pool1", nil)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	failing := Instrument(&stubProvider{err: ErrNotFound}, m)
	err = failing.Delete(ctx, "esxi_resource_pool", "id-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	count, err := testutil.GatherAndCount(reg, "esxigrid_provider_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInstrumentWithoutMetrics(t *testing.T) {
	p := Instrument(&stubProvider{}, nil)
	assert.NotPanics(t, func() {
		_, _ = p.Read(context.Background(), "esxi_virtual_switch", "vs")
	})
}

func TestUnknownKindError(t *testing.T) {
	err := error(&UnknownKindError{Kind: "esxi_nope"})
	assert.EqualError(t, err, `unknown resource kind "esxi_nope"`)
	assert.True(t, errors.Is(err, ErrUnsupported))
}
