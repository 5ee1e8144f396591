package ply

import (
	"fmt"
	"strings"
)

// Format is the payload encoding named on the header's format line.
type Format int

const (
	FormatASCII Format = iota + 1
	FormatBinaryLittleEndian
	FormatBinaryBigEndian
)

func (f Format) String() string {
	switch f {
	case FormatASCII:
		return "ascii"
	case FormatBinaryLittleEndian:
		return "binary_little_endian"
	case FormatBinaryBigEndian:
		return "binary_big_endian"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat maps a format keyword such as binary_little_endian to a Format.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "ascii":
		return FormatASCII, true
	case "binary_little_endian":
		return FormatBinaryLittleEndian, true
	case "binary_big_endian":
		return FormatBinaryBigEndian, true
	}
	return 0, false
}

// ScalarType is one of the eight PLY scalar types.
type ScalarType int

const (
	Int8 ScalarType = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var scalarNames = map[string]ScalarType{
	"char":    Int8,
	"uchar":   Uint8,
	"short":   Int16,
	"ushort":  Uint16,
	"int":     Int32,
	"uint":    Uint32,
	"float":   Float32,
	"double":  Float64,
	"int8":    Int8,
	"uint8":   Uint8,
	"int16":   Int16,
	"uint16":  Uint16,
	"int32":   Int32,
	"uint32":  Uint32,
	"float32": Float32,
	"float64": Float64,
}

func ParseScalarType(s string) (ScalarType, bool) {
	t, ok := scalarNames[strings.ToLower(s)]
	return t, ok
}

// String returns the classic PLY name, which is what Encode writes.
func (t ScalarType) String() string {
	switch t {
	case Int8:
		return "char"
	case Uint8:
		return "uchar"
	case Int16:
		return "short"
	case Uint16:
		return "ushort"
	case Int32:
		return "int"
	case Uint32:
		return "uint"
	case Float32:
		return "float"
	case Float64:
		return "double"
	}
	return fmt.Sprintf("ScalarType(%d)", int(t))
}

// Size is the width in bytes of the binary encoding.
func (t ScalarType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (t ScalarType) IsFloat() bool {
	return t == Float32 || t == Float64
}

// Property is one named, typed field of an element record.
type Property struct {
	Name string
	Type ScalarType

	// IsList marks a list property; Type is then the element type and
	// CountType the type of the leading count.
	IsList    bool
	CountType ScalarType
}

func (p Property) String() string {
	if p.IsList {
		return fmt.Sprintf("property list %s %s %s", p.CountType, p.Type, p.Name)
	}
	return fmt.Sprintf("property %s %s", p.Type, p.Name)
}

// Element is a block of Count records sharing the same properties.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

func (e *Element) Property(name string) (Property, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// fixedSize returns the record width in bytes, or -1 when the element has
// list properties.
func (e *Element) fixedSize() int {
	var n int
	for _, p := range e.Properties {
		if p.IsList {
			return -1
		}
		n += p.Type.Size()
	}
	return n
}

// Header is the schema declared between the ply signature and end_header.
type Header struct {
	Format   Format
	Version  string
	Comments []string
	ObjInfo  []string
	Elements []Element

	// PayloadOffset is the number of bytes consumed up to and including
	// the end_header line.
	PayloadOffset int64
}

func (h *Header) Element(name string) (*Element, bool) {
	for i := range h.Elements {
		if h.Elements[i].Name == name {
			return &h.Elements[i], true
		}
	}
	return nil, false
}

// Record maps property names to decoded values. Scalars hold their Go
// type (int8 ... float64), list properties hold []any of the element type.
type Record map[string]any

// Ply is a decoded PLY stream.
type Ply struct {
	Header
	Records map[string][]Record
}
