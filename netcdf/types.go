package netcdf

import (
	"fmt"
)

// Type is the element type of a variable or attribute.
type Type uint8

// Element types. The set is closed; classic files only use Int8, Char,
// Int16, Int32, Float32 and Float64.
const (
	Invalid Type = iota
	Int8
	Uint8
	Char
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var typeNames = [...]string{
	Invalid: "invalid",
	Int8:    "byte",
	Uint8:   "ubyte",
	Char:    "char",
	Int16:   "short",
	Uint16:  "ushort",
	Int32:   "int",
	Uint32:  "uint",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float",
	Float64: "double",
}

// String returns the CDL name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Size returns the size of one element in bytes.
func (t Type) Size() int {
	switch t {
	case Int8, Uint8, Char:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Dimension is a named axis of the file.
type Dimension struct {
	Name string
	// Len is the current record count for the unlimited dimension.
	Len       int
	Unlimited bool
}

// Attribute is a named value attached to the file or to a variable.
// Value holds a string for Char attributes and a typed slice otherwise.
type Attribute struct {
	Name  string
	Type  Type
	Value interface{}
}

// Variable describes an array stored in the file.
type Variable struct {
	Name string
	// Dims names the dimensions in declaration order, outermost first.
	Dims       []string
	Shape      []int
	Type       Type
	Attributes []Attribute
}

// Len returns the number of elements, 1 for scalars.
func (v *Variable) Len() int64 {
	n := int64(1)
	for _, d := range v.Shape {
		n *= int64(d)
	}
	return n
}

// Rank returns the number of dimensions.
func (v *Variable) Rank() int {
	return len(v.Shape)
}

// TypeOf reports the element type of a typed slice (or string) as
// returned by ReadSlab or stored in Attribute.Value.
func TypeOf(values interface{}) Type {
	switch values.(type) {
	case []int8:
		return Int8
	case []uint8:
		return Uint8
	case string:
		return Char
	case []int16:
		return Int16
	case []uint16:
		return Uint16
	case []int32:
		return Int32
	case []uint32:
		return Uint32
	case []int64:
		return Int64
	case []uint64:
		return Uint64
	case []float32:
		return Float32
	case []float64:
		return Float64
	}
	return Invalid
}

// Count returns the number of elements in a typed slice, or the byte
// length of a string.
func Count(values interface{}) int {
	switch vals := values.(type) {
	case []int8:
		return len(vals)
	case []uint8:
		return len(vals)
	case string:
		return len(vals)
	case []int16:
		return len(vals)
	case []uint16:
		return len(vals)
	case []int32:
		return len(vals)
	case []uint32:
		return len(vals)
	case []int64:
		return len(vals)
	case []uint64:
		return len(vals)
	case []float32:
		return len(vals)
	case []float64:
		return len(vals)
	}
	return 0
}
