package ply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
)

var (
	ErrMissingValue = errors.New("ply: record is missing a property value")
	ErrOutOfRange   = errors.New("ply: value does not fit its property type")
)

// Encode writes p in p.Format. Element counts are taken from the number of
// records held for each element, not from Header.Elements[i].Count.
func Encode(w io.Writer, p *Ply) error {
	var order binary.ByteOrder
	switch p.Format {
	case FormatASCII:
	case FormatBinaryLittleEndian:
		order = binary.LittleEndian
	case FormatBinaryBigEndian:
		order = binary.BigEndian
	default:
		return fmt.Errorf("ply: unsupported format %v", p.Format)
	}
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, p); err != nil {
		return err
	}
	for i := range p.Elements {
		e := &p.Elements[i]
		for j, rec := range p.Records[e.Name] {
			var err error
			if order == nil {
				err = writeASCIIRecord(bw, e, rec)
			} else {
				err = writeBinaryRecord(bw, e, rec, order)
			}
			if err != nil {
				return fmt.Errorf("ply: encode %s[%d]: %w", e.Name, j, err)
			}
		}
	}
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, p *Ply) error {
	version := p.Version
	if version == "" {
		version = "1.0"
	}
	fmt.Fprintf(w, "ply\nformat %s %s\n", p.Format, version)
	for _, c := range p.Comments {
		fmt.Fprintf(w, "comment %s\n", c)
	}
	for _, o := range p.ObjInfo {
		fmt.Fprintf(w, "obj_info %s\n", o)
	}
	for _, e := range p.Elements {
		fmt.Fprintf(w, "element %s %d\n", e.Name, len(p.Records[e.Name]))
		for _, prop := range e.Properties {
			fmt.Fprintln(w, prop.String())
		}
	}
	_, err := w.WriteString(endHeader + "\n")
	return err
}

func writeASCIIRecord(w *bufio.Writer, e *Element, rec Record) error {
	for i, p := range e.Properties {
		if i > 0 {
			w.WriteByte(' ')
		}
		v, ok := rec[p.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingValue, p.Name)
		}
		if !p.IsList {
			if err := writeASCIIScalar(w, p.Type, v); err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
			continue
		}
		items, err := listItems(v)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if err := writeASCIIScalar(w, p.CountType, len(items)); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		for _, item := range items {
			w.WriteByte(' ')
			if err := writeASCIIScalar(w, p.Type, item); err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
		}
	}
	return w.WriteByte('\n')
}

func writeASCIIScalar(w *bufio.Writer, t ScalarType, v any) error {
	var s string
	switch t {
	case Float32:
		f, err := toFloat32(v)
		if err != nil {
			return err
		}
		s = strconv.FormatFloat(float64(f), 'g', -1, 32)
	case Float64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		s = strconv.FormatFloat(f, 'g', -1, 64)
	case Int8, Int16, Int32, Uint8, Uint16, Uint32:
		n, err := toInteger(t, v)
		if err != nil {
			return err
		}
		s = strconv.FormatInt(n, 10)
	default:
		return fmt.Errorf("unknown scalar type %v", t)
	}
	_, err := w.WriteString(s)
	return err
}

func writeBinaryRecord(w *bufio.Writer, e *Element, rec Record, order binary.ByteOrder) error {
	var buf [8]byte
	for _, p := range e.Properties {
		v, ok := rec[p.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingValue, p.Name)
		}
		if !p.IsList {
			if err := writeBinaryScalar(w, buf[:], p.Type, v, order); err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
			continue
		}
		items, err := listItems(v)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if err := writeBinaryScalar(w, buf[:], p.CountType, len(items), order); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		for _, item := range items {
			if err := writeBinaryScalar(w, buf[:], p.Type, item, order); err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
		}
	}
	return nil
}

func writeBinaryScalar(w *bufio.Writer, buf []byte, t ScalarType, v any, order binary.ByteOrder) error {
	b := buf[:t.Size()]
	switch t {
	case Float32:
		f, err := toFloat32(v)
		if err != nil {
			return err
		}
		order.PutUint32(b, math.Float32bits(f))
	case Float64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		order.PutUint64(b, math.Float64bits(f))
	default:
		n, err := toInteger(t, v)
		if err != nil {
			return err
		}
		switch t.Size() {
		case 1:
			b[0] = byte(n)
		case 2:
			order.PutUint16(b, uint16(n))
		case 4:
			order.PutUint32(b, uint32(n))
		default:
			return fmt.Errorf("unknown scalar type %v", t)
		}
	}
	_, err := w.Write(b)
	return err
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	n, err := toInt64(v)
	return float64(n), err
}

func toFloat32(v any) (float32, error) {
	f, err := toFloat64(v)
	if err != nil {
		return 0, err
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("%w: %v as %v", ErrOutOfRange, f, Float32)
	}
	return float32(f), nil
}

// toInteger converts v for an integer property of type t. Floats must hold
// a whole number.
func toInteger(t ScalarType, v any) (int64, error) {
	var n int64
	switch x := v.(type) {
	case float32, float64:
		f, _ := toFloat64(x)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v as %v", ErrOutOfRange, f, t)
		}
		n = int64(f)
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v as %v", ErrOutOfRange, x, t)
		}
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v as %v", ErrOutOfRange, x, t)
		}
		n = int64(x)
	default:
		var err error
		if n, err = toInt64(v); err != nil {
			return 0, err
		}
	}
	lo, hi := intRange(t)
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d as %v", ErrOutOfRange, n, t)
	}
	return n, nil
}

func intRange(t ScalarType) (lo, hi int64) {
	switch t {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint8:
		return 0, math.MaxUint8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint32:
		return 0, math.MaxUint32
	}
	return math.MinInt64, math.MaxInt64
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

// listItems accepts []any as produced by the decoder, or any typed slice.
func listItems(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("list value has type %T", v)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
