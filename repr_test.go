package ncfs

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/fuse-netcdf/ncfs/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, e encoder, typ netcdf.Type, values interface{}, count int) []byte {
	t.Helper()
	dst := make([]byte, count*e.width(typ))
	n, err := e.encode(typ, values, dst)
	require.NoError(t, err)
	require.Equal(t, len(dst), n)
	return dst
}

func TestEncoder_TextWidths(t *testing.T) {
	e := encoder{repr: ReprText}

	// The extremes of each type fit its fixed width
	tests := []struct {
		typ    netcdf.Type
		values interface{}
	}{
		{netcdf.Int8, []int8{math.MinInt8, math.MaxInt8, 0}},
		{netcdf.Uint8, []uint8{0, math.MaxUint8}},
		{netcdf.Int16, []int16{math.MinInt16, math.MaxInt16}},
		{netcdf.Uint16, []uint16{0, math.MaxUint16}},
		{netcdf.Int32, []int32{math.MinInt32, math.MaxInt32}},
		{netcdf.Uint32, []uint32{0, math.MaxUint32}},
		{netcdf.Int64, []int64{math.MinInt64, math.MaxInt64}},
		{netcdf.Uint64, []uint64{0, math.MaxUint64}},
		{netcdf.Float32, []float32{-math.MaxFloat32, math.SmallestNonzeroFloat32, -1.5, float32(math.Inf(-1))}},
		{netcdf.Float64, []float64{-math.MaxFloat64, -math.SmallestNonzeroFloat64, math.NaN(), math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			count := netcdf.Count(tt.values)
			out := encodeAll(t, e, tt.typ, tt.values, count)

			w := e.width(tt.typ)
			lines := strings.SplitAfter(string(out), "\n")
			require.Len(t, lines, count+1)
			for _, line := range lines[:count] {
				assert.Len(t, line, w)
				assert.True(t, strings.HasSuffix(line, "\n"), "%q", line)
			}
		})
	}
}

func TestEncoder_Text(t *testing.T) {
	e := encoder{repr: ReprText}

	out := encodeAll(t, e, netcdf.Int16, []int16{1, -2}, 2)
	assert.Equal(t, "     1\n    -2\n", string(out))

	out = encodeAll(t, e, netcdf.Float64, []float64{0.1}, 1)
	assert.Equal(t, "  1.0000000000000001e-01\n", string(out))

	// Character data stays raw
	assert.Equal(t, 1, e.width(netcdf.Char))
	out = encodeAll(t, e, netcdf.Char, []uint8("abc"), 3)
	assert.Equal(t, "abc", string(out))
}

func TestEncoder_Binary(t *testing.T) {
	le := encoder{repr: ReprBinary, order: binary.LittleEndian}
	be := encoder{repr: ReprBinary, order: binary.BigEndian}

	assert.Equal(t, []byte{0x2c, 0x01}, encodeAll(t, le, netcdf.Int16, []int16{300}, 1))
	assert.Equal(t, []byte{0x01, 0x2c}, encodeAll(t, be, netcdf.Int16, []int16{300}, 1))
	assert.Equal(t, []byte{0xff}, encodeAll(t, le, netcdf.Int8, []int8{-1}, 1))
	assert.Equal(t, []byte{0x3f, 0x80, 0, 0}, encodeAll(t, be, netcdf.Float32, []float32{1}, 1))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, encodeAll(t, le, netcdf.Float64, []float64{1}, 1))

	_, err := le.encode(netcdf.Int32, []string{"x"}, make([]byte, 8))
	assert.Error(t, err)
}

func TestEncoder_Size(t *testing.T) {
	v := &netcdf.Variable{Name: "v", Shape: []int{3, 4}, Type: netcdf.Float64}

	assert.Equal(t, int64(96), encoder{repr: ReprBinary}.size(v))
	assert.Equal(t, int64(12*25), encoder{repr: ReprText}.size(v))

	scalar := &netcdf.Variable{Name: "s", Type: netcdf.Int32}
	assert.Equal(t, int64(4), encoder{repr: ReprBinary}.size(scalar))

	empty := &netcdf.Variable{Name: "e", Shape: []int{0, 4}, Type: netcdf.Int32}
	assert.Zero(t, encoder{repr: ReprBinary}.size(empty))
}

func TestFormatAttribute(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{"degrees_north", "degrees_north\n"},
		{"", "\n"},
		{[]int8{-1, 2}, "-1, 2\n"},
		{[]int16{300}, "300\n"},
		{[]int32{1, 2, 3}, "1, 2, 3\n"},
		{[]float32{0.1, 400}, "0.1, 400\n"},
		{[]float64{0.5, 1e20, -2.25}, "0.5, 1e+20, -2.25\n"},
		{[]uint64{math.MaxUint64}, "18446744073709551615\n"},
	}
	for _, tt := range tests {
		got := formatAttribute(netcdf.Attribute{Name: "a", Value: tt.value})
		assert.Equal(t, tt.want, string(got), "%#v", tt.value)
	}

	assert.Equal(t, "1, 2", string(xattrValue(netcdf.Attribute{Name: "a", Value: []int32{1, 2}})))
}

func TestFormatDimensions(t *testing.T) {
	dims := []netcdf.Dimension{
		{Name: "time", Len: 12, Unlimited: true},
		{Name: "lat", Len: 2},
	}
	v := &netcdf.Variable{Name: "v", Dims: []string{"time", "lat"}, Shape: []int{12, 2}}
	assert.Equal(t, "time = UNLIMITED ; // (12 currently)\nlat = 2 ;\n", string(formatDimensions(v, dims)))

	scalar := &netcdf.Variable{Name: "s"}
	assert.Empty(t, formatDimensions(scalar, dims))
}
