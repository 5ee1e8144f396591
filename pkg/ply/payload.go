package ply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ReadPayload reads every element block declared in h from r, in order.
// It reads exactly the declared number of records and nothing after them.
func ReadPayload(r *bufio.Reader, h *Header) (map[string][]Record, error) {
	records := make(map[string][]Record, len(h.Elements))
	for i := range h.Elements {
		e := &h.Elements[i]
		var (
			rs  []Record
			err error
		)
		switch h.Format {
		case FormatASCII:
			rs, err = readASCIIElement(r, e)
		case FormatBinaryLittleEndian:
			rs, err = readBinaryElement(r, e, binary.LittleEndian)
		case FormatBinaryBigEndian:
			rs, err = readBinaryElement(r, e, binary.BigEndian)
		default:
			return nil, fmt.Errorf("ply: unsupported format %v", h.Format)
		}
		if err != nil {
			return nil, err
		}
		records[e.Name] = rs
	}
	return records, nil
}

// maxPrealloc bounds capacity reserved from counts declared in the input,
// which may be far larger than the data that follows.
const maxPrealloc = 1 << 16

func readASCIIElement(r *bufio.Reader, e *Element) ([]Record, error) {
	rs := make([]Record, 0, min(e.Count, maxPrealloc))
	for i := 0; i < e.Count; i++ {
		line, err := nextASCIILine(r)
		if err != nil {
			return nil, recordErr(e, i, "", err)
		}
		rec, err := parseASCIIRecord(e, strings.Fields(line))
		if err != nil {
			var re *MalformedRecordError
			if errors.As(err, &re) {
				re.Index = i
			}
			return nil, err
		}
		rs = append(rs, rec)
	}
	return rs, nil
}

// nextASCIILine skips blank lines between records.
func nextASCIILine(r *bufio.Reader) (string, error) {
	for {
		line, _, err := readLine(r, 0)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if strings.TrimSpace(line) != "" {
			return line, nil
		}
	}
}

func parseASCIIRecord(e *Element, tokens []string) (Record, error) {
	rec := make(Record, len(e.Properties))
	pos := 0
	next := func(p Property) (string, error) {
		if pos >= len(tokens) {
			return "", recordErr(e, 0, p.Name, fmt.Errorf("expected more tokens, got %d", len(tokens)))
		}
		tok := tokens[pos]
		pos++
		return tok, nil
	}
	for _, p := range e.Properties {
		if !p.IsList {
			tok, err := next(p)
			if err != nil {
				return nil, err
			}
			v, err := parseScalar(p.Type, tok)
			if err != nil {
				return nil, recordErr(e, 0, p.Name, err)
			}
			rec[p.Name] = v
			continue
		}
		tok, err := next(p)
		if err != nil {
			return nil, err
		}
		cv, err := parseScalar(p.CountType, tok)
		if err != nil {
			return nil, recordErr(e, 0, p.Name, err)
		}
		n, err := listLen(cv)
		if err != nil {
			return nil, recordErr(e, 0, p.Name, err)
		}
		if n > len(tokens)-pos {
			return nil, recordErr(e, 0, p.Name, fmt.Errorf("list of %d items, %d tokens left", n, len(tokens)-pos))
		}
		list := make([]any, n)
		for j := range list {
			if list[j], err = parseScalar(p.Type, tokens[pos]); err != nil {
				return nil, recordErr(e, 0, p.Name, err)
			}
			pos++
		}
		rec[p.Name] = list
	}
	if pos != len(tokens) {
		return nil, recordErr(e, 0, "", fmt.Errorf("expected %d tokens, got %d", pos, len(tokens)))
	}
	return rec, nil
}

func parseScalar(t ScalarType, tok string) (any, error) {
	switch t {
	case Float32:
		v, err := strconv.ParseFloat(tok, 32)
		return float32(v), err
	case Float64:
		return strconv.ParseFloat(tok, 64)
	case Int8, Int16, Int32:
		v, err := strconv.ParseInt(tok, 10, t.Size()*8)
		if err != nil {
			return nil, err
		}
		return intOf(t, v), nil
	case Uint8, Uint16, Uint32:
		v, err := strconv.ParseUint(tok, 10, t.Size()*8)
		if err != nil {
			return nil, err
		}
		return uintOf(t, v), nil
	}
	return nil, fmt.Errorf("unknown scalar type %v", t)
}

func intOf(t ScalarType, v int64) any {
	switch t {
	case Int8:
		return int8(v)
	case Int16:
		return int16(v)
	}
	return int32(v)
}

func uintOf(t ScalarType, v uint64) any {
	switch t {
	case Uint8:
		return uint8(v)
	case Uint16:
		return uint16(v)
	}
	return uint32(v)
}

func listLen(count any) (int, error) {
	var n int64
	switch c := count.(type) {
	case int8:
		n = int64(c)
	case int16:
		n = int64(c)
	case int32:
		n = int64(c)
	case uint8:
		n = int64(c)
	case uint16:
		n = int64(c)
	case uint32:
		n = int64(c)
	default:
		return 0, fmt.Errorf("list count has non-integer type %T", count)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative list count %d", n)
	}
	return int(n), nil
}

func readBinaryElement(r *bufio.Reader, e *Element, order binary.ByteOrder) ([]Record, error) {
	rs := make([]Record, 0, min(e.Count, maxPrealloc))
	if size := e.fixedSize(); size >= 0 {
		buf := make([]byte, size)
		for i := 0; i < e.Count; i++ {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, recordErr(e, i, "", truncated(err))
			}
			rec := make(Record, len(e.Properties))
			off := 0
			for _, p := range e.Properties {
				rec[p.Name] = decodeScalar(p.Type, buf[off:], order)
				off += p.Type.Size()
			}
			rs = append(rs, rec)
		}
		return rs, nil
	}

	var scratch [8]byte
	read := func(t ScalarType) (any, error) {
		b := scratch[:t.Size()]
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, truncated(err)
		}
		return decodeScalar(t, b, order), nil
	}
	for i := 0; i < e.Count; i++ {
		rec := make(Record, len(e.Properties))
		for _, p := range e.Properties {
			if !p.IsList {
				v, err := read(p.Type)
				if err != nil {
					return nil, recordErr(e, i, p.Name, err)
				}
				rec[p.Name] = v
				continue
			}
			cv, err := read(p.CountType)
			if err != nil {
				return nil, recordErr(e, i, p.Name, err)
			}
			n, err := listLen(cv)
			if err != nil {
				return nil, recordErr(e, i, p.Name, err)
			}
			list := make([]any, 0, min(n, maxPrealloc))
			for j := 0; j < n; j++ {
				v, err := read(p.Type)
				if err != nil {
					return nil, recordErr(e, i, p.Name, err)
				}
				list = append(list, v)
			}
			rec[p.Name] = list
		}
		rs = append(rs, rec)
	}
	return rs, nil
}

func decodeScalar(t ScalarType, b []byte, order binary.ByteOrder) any {
	switch t {
	case Int8:
		return int8(b[0])
	case Uint8:
		return b[0]
	case Int16:
		return int16(order.Uint16(b))
	case Uint16:
		return order.Uint16(b)
	case Int32:
		return int32(order.Uint32(b))
	case Uint32:
		return order.Uint32(b)
	case Float32:
		return math.Float32frombits(order.Uint32(b))
	case Float64:
		return math.Float64frombits(order.Uint64(b))
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func recordErr(e *Element, i int, prop string, err error) *MalformedRecordError {
	return &MalformedRecordError{Element: e.Name, Index: i, Property: prop, Err: err}
}
