package ncfs

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fuse-netcdf/ncfs/netcdf"
)

// encoder serializes array elements for data files. Every element of a
// given type occupies exactly width(t) bytes so a flat byte offset maps
// to an element index without reading anything.
type encoder struct {
	repr  Representation
	order binary.ByteOrder
}

// textWidths is the widest rendering of each type plus the newline.
var textWidths = map[netcdf.Type]int{
	netcdf.Int8:    len("-128") + 1,
	netcdf.Uint8:   len("255") + 1,
	netcdf.Int16:   len("-32768") + 1,
	netcdf.Uint16:  len("65535") + 1,
	netcdf.Int32:   len("-2147483648") + 1,
	netcdf.Uint32:  len("4294967295") + 1,
	netcdf.Int64:   len("-9223372036854775808") + 1,
	netcdf.Uint64:  len("18446744073709551615") + 1,
	netcdf.Float32: len("-1.2345678e+38") + 1,
	netcdf.Float64: len("-1.2345678901234567e+308") + 1,
}

func (e encoder) width(t netcdf.Type) int {
	if e.repr == ReprText && t != netcdf.Char {
		return textWidths[t]
	}
	return t.Size()
}

// size returns the length of v's data file.
func (e encoder) size(v *netcdf.Variable) int64 {
	return v.Len() * int64(e.width(v.Type))
}

// encode writes values into dst, which must hold Count(values)*width(t)
// bytes, and returns the number of bytes written.
func (e encoder) encode(t netcdf.Type, values interface{}, dst []byte) (int, error) {
	if t == netcdf.Char || e.repr != ReprText {
		return e.encodeBinary(values, dst)
	}
	return e.encodeText(t, values, dst)
}

func (e encoder) encodeBinary(values interface{}, dst []byte) (int, error) {
	o := e.order
	n := 0
	switch vals := values.(type) {
	case []int8:
		for _, v := range vals {
			dst[n] = byte(v)
			n++
		}
	case []uint8:
		n = copy(dst, vals)
	case []int16:
		for _, v := range vals {
			o.PutUint16(dst[n:], uint16(v))
			n += 2
		}
	case []uint16:
		for _, v := range vals {
			o.PutUint16(dst[n:], v)
			n += 2
		}
	case []int32:
		for _, v := range vals {
			o.PutUint32(dst[n:], uint32(v))
			n += 4
		}
	case []uint32:
		for _, v := range vals {
			o.PutUint32(dst[n:], v)
			n += 4
		}
	case []int64:
		for _, v := range vals {
			o.PutUint64(dst[n:], uint64(v))
			n += 8
		}
	case []uint64:
		for _, v := range vals {
			o.PutUint64(dst[n:], v)
			n += 8
		}
	case []float32:
		for _, v := range vals {
			o.PutUint32(dst[n:], math.Float32bits(v))
			n += 4
		}
	case []float64:
		for _, v := range vals {
			o.PutUint64(dst[n:], math.Float64bits(v))
			n += 8
		}
	default:
		return 0, fmt.Errorf("cannot encode %T", values)
	}
	return n, nil
}

func (e encoder) encodeText(t netcdf.Type, values interface{}, dst []byte) (int, error) {
	w := textWidths[t]
	var scratch [32]byte
	n := 0
	put := func(text []byte) {
		pad := w - 1 - len(text)
		for i := 0; i < pad; i++ {
			dst[n+i] = ' '
		}
		copy(dst[n+pad:], text)
		dst[n+w-1] = '\n'
		n += w
	}
	switch vals := values.(type) {
	case []int8:
		for _, v := range vals {
			put(strconv.AppendInt(scratch[:0], int64(v), 10))
		}
	case []uint8:
		for _, v := range vals {
			put(strconv.AppendUint(scratch[:0], uint64(v), 10))
		}
	case []int16:
		for _, v := range vals {
			put(strconv.AppendInt(scratch[:0], int64(v), 10))
		}
	case []uint16:
		for _, v := range vals {
			put(strconv.AppendUint(scratch[:0], uint64(v), 10))
		}
	case []int32:
		for _, v := range vals {
			put(strconv.AppendInt(scratch[:0], int64(v), 10))
		}
	case []uint32:
		for _, v := range vals {
			put(strconv.AppendUint(scratch[:0], uint64(v), 10))
		}
	case []int64:
		for _, v := range vals {
			put(strconv.AppendInt(scratch[:0], v, 10))
		}
	case []uint64:
		for _, v := range vals {
			put(strconv.AppendUint(scratch[:0], v, 10))
		}
	case []float32:
		for _, v := range vals {
			put(strconv.AppendFloat(scratch[:0], float64(v), 'e', 7, 32))
		}
	case []float64:
		for _, v := range vals {
			put(strconv.AppendFloat(scratch[:0], v, 'e', 16, 64))
		}
	default:
		return 0, fmt.Errorf("cannot encode %T", values)
	}
	return n, nil
}

// formatAttribute renders an attribute value for its .attributes file:
// strings verbatim, numbers comma separated, newline terminated.
func formatAttribute(a netcdf.Attribute) []byte {
	var parts []string
	switch vals := a.Value.(type) {
	case string:
		return []byte(vals + "\n")
	case []int8:
		for _, v := range vals {
			parts = append(parts, strconv.FormatInt(int64(v), 10))
		}
	case []uint8:
		for _, v := range vals {
			parts = append(parts, strconv.FormatUint(uint64(v), 10))
		}
	case []int16:
		for _, v := range vals {
			parts = append(parts, strconv.FormatInt(int64(v), 10))
		}
	case []uint16:
		for _, v := range vals {
			parts = append(parts, strconv.FormatUint(uint64(v), 10))
		}
	case []int32:
		for _, v := range vals {
			parts = append(parts, strconv.FormatInt(int64(v), 10))
		}
	case []uint32:
		for _, v := range vals {
			parts = append(parts, strconv.FormatUint(uint64(v), 10))
		}
	case []int64:
		for _, v := range vals {
			parts = append(parts, strconv.FormatInt(v, 10))
		}
	case []uint64:
		for _, v := range vals {
			parts = append(parts, strconv.FormatUint(v, 10))
		}
	case []float32:
		for _, v := range vals {
			parts = append(parts, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
	case []float64:
		for _, v := range vals {
			parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
		}
	default:
		return []byte(fmt.Sprint(a.Value) + "\n")
	}
	return []byte(strings.Join(parts, ", ") + "\n")
}

// formatDimensions renders a variable's dimensions in CDL style, one
// per line, outermost first.
func formatDimensions(v *netcdf.Variable, dims []netcdf.Dimension) []byte {
	var b strings.Builder
	for i, name := range v.Dims {
		unlimited := false
		for _, d := range dims {
			if d.Name == name {
				unlimited = d.Unlimited
				break
			}
		}
		if unlimited {
			fmt.Fprintf(&b, "%s = UNLIMITED ; // (%d currently)\n", name, v.Shape[i])
		} else {
			fmt.Fprintf(&b, "%s = %d ;\n", name, v.Shape[i])
		}
	}
	return []byte(b.String())
}
