package property

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCtyRoundTrip(t *testing.T) {
	v := Map(map[string]Value{
		"name":  String("pool1"),
		"min":   Int(100),
		"flag":  Bool(true),
		"items": List(String("a"), Int(2)),
		"empty": List(),
	})
	cv, err := ToCty(v)
	require.NoError(t, err)

	back, err := FromCty(cv)
	require.NoError(t, err)
	assert.True(t, v.Equal(back), "got %v", back)
}

func TestFromCty(t *testing.T) {
	t.Run("unknown is rejected", func(t *testing.T) {
		_, err := FromCty(cty.UnknownVal(cty.String))
		assert.ErrorContains(t, err, "not known")
	})

	t.Run("set becomes list", func(t *testing.T) {
		v, err := FromCty(cty.SetVal([]cty.Value{cty.StringVal("a")}))
		require.NoError(t, err)
		assert.True(t, List(String("a")).Equal(v))
	})

	t.Run("null", func(t *testing.T) {
		v, err := FromCty(cty.NullVal(cty.String))
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	})
}

func TestToCtyRejectsReferences(t *testing.T) {
	_, err := ToCty(List(Ref("a", "b")))
	assert.ErrorContains(t, err, "unresolved reference a.b")
}

func TestConform(t *testing.T) {
	nicType := cty.List(cty.Object(map[string]cty.Type{"virtualNetwork": cty.String}))

	tests := []struct {
		name    string
		value   Value
		typ     cty.Type
		wantErr string
	}{
		{name: "string ok", value: String("x"), typ: cty.String},
		{name: "number for string", value: Int(1), typ: cty.String, wantErr: `expected string, got number`},
		{name: "null always conforms", value: Null(), typ: cty.Number},
		{name: "reference deferred", value: Ref("a", "b"), typ: cty.Bool},
		{name: "nested ok", value: List(Map(map[string]Value{"virtualNetwork": String("n"), "extra": Int(1)})), typ: nicType},
		{name: "nested mismatch", value: List(Map(map[string]Value{"virtualNetwork": Bool(true)})), typ: nicType, wantErr: `"nics[0].virtualNetwork"`},
		{name: "map elements", value: Map(map[string]Value{"a": String("x")}), typ: cty.Map(cty.Number), wantErr: `"nics.a"`},
		{name: "any", value: Map(nil), typ: cty.DynamicPseudoType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Conform(tc.value, tc.typ, "nics")
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var mismatch *SchemaMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
