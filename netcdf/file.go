// Package netcdf reads the metadata and array data of netCDF classic and
// 64-bit offset files.
//
// Metadata (dimensions, variables, attributes) is decoded once when the
// file is opened and never changes afterwards. Array data is read on
// demand, one hyperslab at a time, with positioned reads on the
// underlying file so concurrent readers need no locking.
package netcdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ctessum/cdf"
)

var (
	// ErrMalformed is returned by Open when the file cannot be decoded.
	ErrMalformed = errors.New("malformed netCDF file")

	// ErrUnknownVariable is returned when a variable does not belong to the file.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrBadSlab is returned for hyperslab bounds outside the variable's shape.
	ErrBadSlab = errors.New("hyperslab out of range")
)

// File is an open netCDF file.
type File struct {
	path  string
	size  int64
	osf   *os.File
	cf    *cdf.File
	dims  []Dimension
	vars  []*Variable
	attrs []Attribute
	index map[*Variable]int
}

// Path returns the path the file was opened from.
func (f *File) Path() string { return f.path }

// Size returns the size of the file on disk.
func (f *File) Size() int64 { return f.size }

// Dimensions returns the file's dimensions in declaration order.
func (f *File) Dimensions() []Dimension { return f.dims }

// Variables returns the file's variables in declaration order.
func (f *File) Variables() []*Variable { return f.vars }

// Attributes returns the global attributes.
func (f *File) Attributes() []Attribute { return f.attrs }

// Variable returns the variable with the given netCDF name.
func (f *File) Variable(name string) (*Variable, bool) {
	for _, v := range f.vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// ReadSlab reads the hyperslab [begin, end) of v and returns its values
// as a typed slice in row-major order. Char data is returned as []uint8.
// Nil bounds select the whole variable.
func (f *File) ReadSlab(ctx context.Context, v *Variable, begin, end []int) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := f.index[v]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, v.Name)
	}
	if begin == nil && end == nil {
		end = v.Shape
		begin = make([]int, len(end))
	}
	if err := checkSlab(v, begin, end); err != nil {
		return nil, err
	}
	var values interface{}
	err := guard(func() error {
		var err error
		values, err = f.read(v, begin, end)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s%v-%v: %w", v.Name, begin, end, err)
	}
	return values, nil
}

func (f *File) read(v *Variable, begin, end []int) (interface{}, error) {
	want := 1
	for i := range begin {
		want *= end[i] - begin[i]
	}
	if want == 0 {
		return zeroSlice(v.Type, 0), nil
	}
	var r cdf.Reader
	if len(begin) == 0 {
		r = f.cf.Reader(v.Name, nil, nil)
	} else {
		r = f.cf.Reader(v.Name, begin, end)
	}
	buf := r.Zero(want)
	n, err := r.Read(buf)
	if err != nil && !(errors.Is(err, io.EOF) && n == want) {
		return nil, err
	}
	if n != want {
		return nil, fmt.Errorf("short read: %d of %d elements: %w", n, want, io.ErrUnexpectedEOF)
	}
	if v.Type == Int8 {
		return signedBytes(buf.([]uint8)), nil
	}
	return buf, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.osf.Close()
}

func checkSlab(v *Variable, begin, end []int) error {
	if len(begin) != len(v.Shape) || len(end) != len(v.Shape) {
		return fmt.Errorf("%w: %s has rank %d", ErrBadSlab, v.Name, len(v.Shape))
	}
	for i, n := range v.Shape {
		if begin[i] < 0 || begin[i] > end[i] || end[i] > n {
			return fmt.Errorf("%w: %s dimension %d: [%d, %d) of %d", ErrBadSlab, v.Name, i, begin[i], end[i], n)
		}
	}
	return nil
}

// guard converts a panic inside the decoder into an error. cdf trusts
// header fields and can index out of range on corrupt input.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return fn()
}

func zeroSlice(t Type, n int) interface{} {
	switch t {
	case Int8:
		return make([]int8, n)
	case Uint8, Char:
		return make([]uint8, n)
	case Int16:
		return make([]int16, n)
	case Uint16:
		return make([]uint16, n)
	case Int32:
		return make([]int32, n)
	case Uint32:
		return make([]uint32, n)
	case Int64:
		return make([]int64, n)
	case Uint64:
		return make([]uint64, n)
	case Float32:
		return make([]float32, n)
	case Float64:
		return make([]float64, n)
	}
	return nil
}
