// Package netcdftest writes small netCDF classic files for tests.
//
// Example usage:
//
//	path := netcdftest.Write(t, netcdftest.Fixture{
//	    Dims:    []string{"time", "lat"},
//	    Lengths: []int{4, 2},
//	    Vars: []netcdftest.Var{
//	        {Name: "temp", Dims: []string{"time", "lat"}, Data: []float32{...}},
//	    },
//	})
package netcdftest

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

// Attr is an attribute to attach to the file or a variable. Value is a
// string for char data or a typed slice ([]uint8 for signed bytes,
// []int16, []int32, []float32, []float64).
type Attr struct {
	Name  string
	Value interface{}
}

// Var is a variable. Data holds every element in row-major order, as a
// typed slice like Attr.Value or a string for char data. A variable on
// the record dimension holds as many records as Data fills.
type Var struct {
	Name  string
	Dims  []string
	Data  interface{}
	Attrs []Attr
}

// Fixture describes the file to write.
type Fixture struct {
	Dims []string
	// Lengths holds one length per dimension; 0 marks the record dimension.
	Lengths []int
	Attrs   []Attr
	Vars    []Var

	// Streaming leaves the header's record count as STREAMING, the way
	// cdf.Create writes it. Otherwise the count is set from the file size.
	Streaming bool
}

// Write writes fx to a new file in a per-test temporary directory and
// returns its path.
func Write(t testing.TB, fx Fixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.nc")
	WriteFile(t, path, fx)
	return path
}

// WriteFile writes fx to path.
func WriteFile(t testing.TB, path string, fx Fixture) {
	t.Helper()

	h := cdf.NewHeader(fx.Dims, fx.Lengths)
	for _, a := range fx.Attrs {
		h.AddAttribute("", a.Name, a.Value)
	}
	for _, v := range fx.Vars {
		h.AddVariable(v.Name, v.Dims, zeroOf(v.Data))
		for _, a := range v.Attrs {
			h.AddAttribute(v.Name, a.Name, a.Value)
		}
	}
	h.Define()

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer out.Close()

	f, err := cdf.Create(out, h)
	if err != nil {
		t.Fatalf("writing header: %v", err)
	}

	for _, v := range fx.Vars {
		// Nil bounds let a record variable extend the file
		w := f.Writer(v.Name, nil, nil)
		if _, err := w.Write(v.Data); err != nil && !errors.Is(err, io.EOF) {
			t.Fatalf("writing %s: %v", v.Name, err)
		}
	}

	if !fx.Streaming {
		if err := cdf.UpdateNumRecs(out); err != nil {
			t.Fatalf("updating record count: %v", err)
		}
	}
}

// Truncate cuts the file at path down to size bytes.
func Truncate(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.Truncate(path, size); err != nil {
		t.Fatalf("truncating %s: %v", path, err)
	}
}

// zeroOf returns a one-element value of the same type as data, which is
// how cdf learns a variable's element type.
func zeroOf(data interface{}) interface{} {
	if _, ok := data.(string); ok {
		return ""
	}
	return reflect.MakeSlice(reflect.TypeOf(data), 1, 1).Interface()
}
