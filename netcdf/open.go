package netcdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ctessum/cdf"
)

const (
	magicClassic = "CDF\x01"
	magicOffset  = "CDF\x02"
	magicHDF5    = "\x89HDF"

	// streamingRecs marks a header whose record count was never written.
	streamingRecs = 0xFFFFFFFF
)

// Open opens the netCDF file at path read-only, decodes its metadata and
// checks that every variable's data is present. Decoding and truncation
// failures wrap ErrMalformed.
func Open(path string) (*File, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	f, err := open(path, osf)
	if err != nil {
		osf.Close()
		return nil, err
	}
	return f, nil
}

func open(path string, osf *os.File) (*File, error) {
	info, err := osf.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := checkMagic(osf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	var cf *cdf.File
	err = guard(func() error {
		var err error
		cf, err = cdf.Open(osf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	f := &File{
		path:  path,
		size:  info.Size(),
		osf:   osf,
		cf:    cf,
		index: make(map[*Variable]int),
	}
	err = guard(func() error {
		return f.decodeHeader(numRecs(osf, cf.Header, f.size))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return f, nil
}

func checkMagic(r io.ReaderAt) error {
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return fmt.Errorf("reading magic number: %v", err)
	}
	switch string(magic[:]) {
	case magicClassic, magicOffset:
		return nil
	case magicHDF5:
		return fmt.Errorf("netCDF-4/HDF5 files are not supported")
	}
	if bytes.HasPrefix(magic[:], []byte("CDF")) {
		return fmt.Errorf("unsupported format version %d", magic[3])
	}
	return fmt.Errorf("not a netCDF file")
}

// numRecs returns the record count. The cdf header does not export the
// count field, and an unlimited dimension reports a zero length. Writers
// that leave the field as STREAMING (cdf.Create among them) get the count
// of complete records the file size holds.
func numRecs(r io.ReaderAt, h *cdf.Header, size int64) int {
	var b [4]byte
	if _, err := r.ReadAt(b[:], 4); err == nil {
		if n := binary.BigEndian.Uint32(b[:]); n != streamingRecs {
			return int(n)
		}
	}
	return int(h.NumRecs(size))
}

func (f *File) decodeHeader(recs int) error {
	h := f.cf.Header

	names := h.Dimensions("")
	lengths := h.Lengths("")
	if len(names) != len(lengths) {
		return fmt.Errorf("%d dimension names for %d lengths", len(names), len(lengths))
	}
	byName := make(map[string]Dimension, len(names))
	for i, name := range names {
		d := Dimension{Name: name, Len: lengths[i]}
		if d.Len == 0 {
			d.Unlimited = true
			d.Len = recs
		}
		if d.Len < 0 {
			return fmt.Errorf("dimension %s has negative length %d", name, d.Len)
		}
		f.dims = append(f.dims, d)
		byName[name] = d
	}

	attrs, err := decodeAttributes(h, "")
	if err != nil {
		return err
	}
	f.attrs = attrs

	for i, name := range h.Variables() {
		v := &Variable{Name: name, Dims: h.Dimensions(name)}
		for _, dn := range v.Dims {
			d, ok := byName[dn]
			if !ok {
				return fmt.Errorf("variable %s uses undefined dimension %s", name, dn)
			}
			v.Shape = append(v.Shape, d.Len)
		}
		v.Type = variableType(h.ZeroValue(name, 1))
		if v.Type == Invalid {
			return fmt.Errorf("variable %s has an unsupported element type", name)
		}
		if v.Attributes, err = decodeAttributes(h, name); err != nil {
			return err
		}
		f.vars = append(f.vars, v)
		f.index[v] = i
	}
	return nil
}

func decodeAttributes(h *cdf.Header, v string) ([]Attribute, error) {
	names := h.Attributes(v)
	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		val := h.GetAttribute(v, name)
		if b, ok := val.([]uint8); ok {
			val = signedBytes(b)
		}
		t := TypeOf(val)
		if t == Invalid {
			return nil, fmt.Errorf("attribute %s:%s has an unsupported type %T", v, name, val)
		}
		attrs = append(attrs, Attribute{Name: name, Type: t, Value: val})
	}
	return attrs, nil
}

// variableType maps the zero value cdf allocates for a variable to its
// element type. cdf holds the signed NC_BYTE in []uint8 and NC_CHAR in a
// string.
func variableType(zero interface{}) Type {
	switch zero.(type) {
	case []uint8:
		return Int8
	case string:
		return Char
	}
	return TypeOf(zero)
}

// signedBytes copies NC_BYTE values into an []int8. The input may be
// shared by the cdf header and is not modified.
func signedBytes(b []uint8) []int8 {
	out := make([]int8, len(b))
	for i, x := range b {
		out[i] = int8(x)
	}
	return out
}

// validate reads the last element of every non-empty variable so a
// truncated file fails at open time rather than on first access.
func (f *File) validate() error {
	for _, v := range f.vars {
		if v.Len() == 0 {
			continue
		}
		begin := make([]int, v.Rank())
		end := make([]int, v.Rank())
		for i, n := range v.Shape {
			begin[i] = n - 1
			end[i] = n
		}
		err := guard(func() error {
			_, err := f.read(v, begin, end)
			return err
		})
		if err != nil {
			return fmt.Errorf("variable %s: %v", v.Name, err)
		}
	}
	return nil
}
