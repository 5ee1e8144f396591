package ply

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

const (
	magic      = "ply"
	endHeader  = "end_header"
	maxHdrLine = 64 << 10
)

// ReadHeader parses the header from r and leaves r positioned at the first
// payload byte. Blank lines anywhere in the header are ignored.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{}
	var (
		lineNo int
		cur    *Element
		seen   map[string]bool
		sawMagic, sawFormat bool
	)
	for {
		line, n, err := readLine(r, maxHdrLine)
		h.PayloadOffset += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !sawMagic {
					return nil, headerErr(0, "", "missing ply signature")
				}
				return nil, headerErr(0, "", "missing end_header")
			}
			return nil, err
		}
		lineNo++
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if !sawMagic {
			if text != magic {
				return nil, headerErr(lineNo, line, "missing ply signature")
			}
			sawMagic = true
			continue
		}

		fields := strings.Fields(text)
		switch fields[0] {
		case "format":
			if sawFormat {
				return nil, headerErr(lineNo, line, "duplicate format line")
			}
			if len(fields) != 3 {
				return nil, headerErr(lineNo, line, "format needs mode and version")
			}
			f, ok := ParseFormat(fields[1])
			if !ok {
				return nil, headerErr(lineNo, line, "unknown format "+fields[1])
			}
			h.Format, h.Version = f, fields[2]
			sawFormat = true
		case "comment":
			h.Comments = append(h.Comments, restOf(text, "comment"))
		case "obj_info":
			h.ObjInfo = append(h.ObjInfo, restOf(text, "obj_info"))
		case "element":
			if len(fields) != 3 {
				return nil, headerErr(lineNo, line, "element needs name and count")
			}
			count, cerr := strconv.Atoi(fields[2])
			if cerr != nil || count < 0 {
				return nil, headerErr(lineNo, line, "element count is not a non-negative integer")
			}
			if _, dup := h.Element(fields[1]); dup {
				return nil, headerErr(lineNo, line, "duplicate element "+fields[1])
			}
			h.Elements = append(h.Elements, Element{Name: fields[1], Count: count})
			cur = &h.Elements[len(h.Elements)-1]
			seen = map[string]bool{}
		case "property":
			if cur == nil {
				return nil, headerErr(lineNo, line, "property before any element")
			}
			p, reason := parseProperty(fields)
			if reason != "" {
				return nil, headerErr(lineNo, line, reason)
			}
			if seen[p.Name] {
				return nil, headerErr(lineNo, line, "duplicate property "+p.Name)
			}
			seen[p.Name] = true
			cur.Properties = append(cur.Properties, p)
		case endHeader:
			if !sawFormat {
				return nil, headerErr(lineNo, line, "missing format line")
			}
			return h, nil
		default:
			return nil, headerErr(lineNo, line, "unknown keyword "+fields[0])
		}
	}
}

func parseProperty(fields []string) (p Property, reason string) {
	if len(fields) >= 2 && fields[1] == "list" {
		if len(fields) != 5 {
			return p, "list property needs count type, element type and name"
		}
		ct, ok := ParseScalarType(fields[2])
		if !ok {
			return p, "unknown type " + fields[2]
		}
		if ct.IsFloat() {
			return p, "list count type must be an integer type"
		}
		et, ok := ParseScalarType(fields[3])
		if !ok {
			return p, "unknown type " + fields[3]
		}
		return Property{Name: fields[4], Type: et, IsList: true, CountType: ct}, ""
	}
	if len(fields) != 3 {
		return p, "property needs type and name"
	}
	t, ok := ParseScalarType(fields[1])
	if !ok {
		return p, "unknown type " + fields[1]
	}
	return Property{Name: fields[2], Type: t}, ""
}

// readLine returns one line without its terminator along with the number of
// bytes consumed. A final line without '\n' is returned with a nil error.
// limit bounds the line length; zero means unbounded.
func readLine(r *bufio.Reader, limit int) (string, int, error) {
	var sb strings.Builder
	var n int
	for {
		frag, err := r.ReadSlice('\n')
		n += len(frag)
		sb.Write(frag)
		if limit > 0 && sb.Len() > limit {
			return "", n, headerErr(0, "", "header line too long")
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && sb.Len() > 0 {
			break
		}
		return "", n, err
	}
	return strings.TrimRight(sb.String(), "\r\n"), n, nil
}

func restOf(text, keyword string) string {
	return strings.TrimSpace(strings.TrimPrefix(text, keyword))
}

func headerErr(line int, text, reason string) error {
	return &MalformedHeaderError{Line: line, Text: text, Reason: reason}
}
