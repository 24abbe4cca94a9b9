package pipo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrSet(t *testing.T) {
	tests := []struct {
		name      string
		attr      *Attr
		values    []string
		shouldErr bool
	}{
		{name: "valid float", attr: NewAttr("factor", "", AttrFloat, "1"), values: []string{"2.5"}},
		{name: "invalid float", attr: NewAttr("factor", "", AttrFloat, "1"), values: []string{"abc"}, shouldErr: true},
		{name: "valid int list", attr: NewAttr("columns", "", AttrInt), values: []string{"0", "3", "4"}},
		{name: "invalid int", attr: NewAttr("size", "", AttrInt, "1"), values: []string{"1.5"}, shouldErr: true},
		{name: "valid bool", attr: NewAttr("enabled", "", AttrBool, "true"), values: []string{"false"}},
		{name: "valid enum", attr: NewEnumAttr("mode", "", "mean", "median"), values: []string{"median"}},
		{name: "invalid enum", attr: NewEnumAttr("mode", "", "mean", "median"), values: []string{"max"}, shouldErr: true},
		{name: "any string", attr: NewAttr("label", "", AttrString), values: []string{"loudness"}},
		{name: "no value", attr: NewAttr("label", "", AttrString, "x"), values: nil, shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.attr.Values()
			err := tt.attr.Set(tt.values...)
			if tt.shouldErr {
				assert.Error(t, err)
				assert.Equal(t, before, tt.attr.Values(), "failed set must not modify the attribute")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.values, tt.attr.Values())
			}
		})
	}
}

func TestAttrTypedGetters(t *testing.T) {
	a := NewAttr("values", "", AttrFloat, "0.5", "2")
	assert.Equal(t, 0.5, a.Float(0))
	assert.Equal(t, 2.0, a.Float(1))
	assert.Equal(t, 0.0, a.Float(5))
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, "0.5 2", a.String())

	n := NewAttr("n", "", AttrInt, "7")
	assert.Equal(t, 7, n.Int(0))

	b := NewAttr("on", "", AttrBool, "true")
	assert.True(t, b.Bool(0))
	assert.False(t, b.Bool(1))

	e := NewEnumAttr("mode", "", "mean", "median")
	assert.Equal(t, "mean", e.Str(0))
	assert.Equal(t, AttrEnum, e.Kind)
	assert.Equal(t, "enum", e.Kind.String())
}

func TestAttrSetOrderAndLookup(t *testing.T) {
	set := NewAttrSet()
	factor := NewAttr("factor", "", AttrFloat, "1")
	offset := NewAttr("offset", "", AttrFloat, "0")
	set.Add(factor, offset)
	set.AddAs("scale.factor", factor)

	assert.Equal(t, []string{"factor", "offset", "scale.factor"}, set.Names())
	assert.Equal(t, 3, set.Len())

	require.NoError(t, set.Set("scale.factor", "4"))
	got, ok := set.Get("factor")
	require.True(t, ok)
	assert.Equal(t, 4.0, got.Float(0), "aliases share storage")

	err := set.Set("missing", "1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown attribute missing")

	_, ok = set.Get("missing")
	assert.False(t, ok)
}
