package ply

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cubeHeader = `ply
format ascii 1.0
comment made by hand
element vertex 3
property float x
property float y
property float z
property uchar red
element face 1
property list uchar int vertex_indices
end_header
`

const cubeBody = `0 0 0 255
1 0.5 0 10
0 1 -2.25 0
3 0 1 2
`

func sampleCloud(format Format) *Ply {
	return &Ply{
		Header: Header{
			Format:   format,
			Version:  "1.0",
			Comments: []string{"scan 7", "made by hand"},
			ObjInfo:  []string{"lidar front"},
			Elements: []Element{
				{Name: "vertex", Count: 3, Properties: []Property{
					{Name: "x", Type: Float32},
					{Name: "y", Type: Float32},
					{Name: "z", Type: Float32},
					{Name: "red", Type: Uint8},
					{Name: "intensity", Type: Float64},
					{Name: "ring", Type: Int16},
					{Name: "stamp", Type: Uint32},
				}},
				{Name: "face", Count: 2, Properties: []Property{
					{Name: "flags", Type: Int8},
					{Name: "vertex_indices", Type: Int32, IsList: true, CountType: Uint8},
				}},
			},
		},
		Records: map[string][]Record{
			"vertex": {
				{"x": float32(0), "y": float32(0), "z": float32(0), "red": uint8(255), "intensity": 0.125, "ring": int16(-3), "stamp": uint32(4000000000)},
				{"x": float32(1.5), "y": float32(-2), "z": float32(3.25), "red": uint8(0), "intensity": math.Pi, "ring": int16(12), "stamp": uint32(1)},
				{"x": float32(1e-7), "y": float32(1e6), "z": float32(-0.1), "red": uint8(17), "intensity": -1e300, "ring": int16(0), "stamp": uint32(0)},
			},
			"face": {
				{"flags": int8(-1), "vertex_indices": []any{int32(0), int32(1), int32(2)}},
				{"flags": int8(4), "vertex_indices": []any{}},
			},
		},
	}
}

func decodeString(t *testing.T, s string) *Ply {
	t.Helper()
	p, err := Decode(strings.NewReader(s))
	require.NoError(t, err)
	return p
}

func TestDecodeASCII(t *testing.T) {
	p := decodeString(t, cubeHeader+cubeBody)

	assert.Equal(t, FormatASCII, p.Format)
	assert.Equal(t, "1.0", p.Version)
	assert.Equal(t, []string{"made by hand"}, p.Comments)
	require.Len(t, p.Elements, 2)
	assert.Equal(t, int64(len(cubeHeader)), p.PayloadOffset)

	want := map[string][]Record{
		"vertex": {
			{"x": float32(0), "y": float32(0), "z": float32(0), "red": uint8(255)},
			{"x": float32(1), "y": float32(0.5), "z": float32(0), "red": uint8(10)},
			{"x": float32(0), "y": float32(1), "z": float32(-2.25), "red": uint8(0)},
		},
		"face": {
			{"vertex_indices": []any{int32(0), int32(1), int32(2)}},
		},
	}
	if diff := cmp.Diff(want, p.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderBlankLines(t *testing.T) {
	clean, err := ReadHeader(bufio.NewReader(strings.NewReader(cubeHeader)))
	require.NoError(t, err)

	lines := strings.SplitAfter(strings.TrimSuffix(cubeHeader, "\n"), "\n")
	for i := range lines {
		padded := strings.Join(lines[:i], "") + "\n  \t\r\n" + strings.Join(lines[i:], "")
		h, err := ReadHeader(bufio.NewReader(strings.NewReader(padded + "\n")))
		require.NoError(t, err, "blank line before header line %d", i+1)
		if diff := cmp.Diff(clean, h, cmpopts.IgnoreFields(Header{}, "PayloadOffset")); diff != "" {
			t.Errorf("blank line at %d changed the schema (-want +got):\n%s", i, diff)
		}
	}
}

func TestHeaderEveryOtherLineBlank(t *testing.T) {
	spaced := strings.ReplaceAll(cubeHeader, "\n", "\n\n")
	p := decodeString(t, spaced+cubeBody)
	clean := decodeString(t, cubeHeader+cubeBody)
	assert.Equal(t, clean.Elements, p.Elements)
	assert.Equal(t, clean.Records, p.Records)
	// the blank line after end_header is part of the payload
	assert.Equal(t, int64(len(spaced)-1), p.PayloadOffset)
}

func TestHeaderCRLF(t *testing.T) {
	p := decodeString(t, strings.ReplaceAll(cubeHeader+cubeBody, "\n", "\r\n"))
	assert.Len(t, p.Records["vertex"], 3)
}

func TestSizedTypeNames(t *testing.T) {
	p := decodeString(t, "ply\nformat ascii 1.0\nelement v 1\nproperty float32 x\nproperty uint8 c\nproperty list uint8 int32 idx\nend_header\n1.5 7 2 4 5\n")
	assert.Equal(t, Record{"x": float32(1.5), "c": uint8(7), "idx": []any{int32(4), int32(5)}}, p.Records["v"][0])
}

func TestMalformedHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no signature", "format ascii 1.0\nelement v 0\nend_header\n"},
		{"no end_header", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\n"},
		{"no format", "ply\nelement v 0\nend_header\n"},
		{"bad format", "ply\nformat text 1.0\nend_header\n"},
		{"duplicate format", "ply\nformat ascii 1.0\nformat ascii 1.0\nend_header\n"},
		{"negative count", "ply\nformat ascii 1.0\nelement v -1\nend_header\n"},
		{"non integer count", "ply\nformat ascii 1.0\nelement v many\nend_header\n"},
		{"unknown type", "ply\nformat ascii 1.0\nelement v 1\nproperty float128 x\nend_header\n"},
		{"unknown list type", "ply\nformat ascii 1.0\nelement v 1\nproperty list uchar quad x\nend_header\n"},
		{"float list count", "ply\nformat ascii 1.0\nelement v 1\nproperty list float int x\nend_header\n"},
		{"orphan property", "ply\nformat ascii 1.0\nproperty float x\nend_header\n"},
		{"duplicate property", "ply\nformat ascii 1.0\nelement v 1\nproperty float x\nproperty int x\nend_header\n"},
		{"duplicate element", "ply\nformat ascii 1.0\nelement v 1\nelement v 1\nend_header\n"},
		{"unknown keyword", "ply\nformat ascii 1.0\nvertices 3\nend_header\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedHeader)
			var he *MalformedHeaderError
			assert.True(t, errors.As(err, &he))
		})
	}
}

func TestMissingEndHeaderAfterBlankLines(t *testing.T) {
	_, err := Decode(strings.NewReader("ply\n\nformat binary_little_endian 1.0\n\n\n"))
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestReadsExactlyCountRecords(t *testing.T) {
	src := "ply\nformat ascii 1.0\nelement vertex 3\nproperty int a\nend_header\n1\n2\n3\nfourth line\n"
	br := bufio.NewReader(strings.NewReader(src))
	d := NewDecoder(br)
	p, err := d.Decode()
	require.NoError(t, err)
	assert.Len(t, p.Records["vertex"], 3)

	rest, err := io.ReadAll(d.Reader())
	require.NoError(t, err)
	assert.Equal(t, "fourth line\n", string(rest))
}

func TestBinaryStopsAtPayloadEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleCloud(FormatBinaryLittleEndian)))
	buf.WriteString("trailer")

	br := bufio.NewReader(&buf)
	_, err := NewDecoder(br).Decode()
	require.NoError(t, err)
	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, "trailer", string(rest))
}

func TestMalformedASCIIRecord(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"too few tokens", "0 0 0\n1 0 0 1\n0 1 0 1\n3 0 1 2\n"},
		{"too many tokens", "0 0 0 1 9\n1 0 0 1\n0 1 0 1\n3 0 1 2\n"},
		{"bad float", "0 zero 0 1\n1 0 0 1\n0 1 0 1\n3 0 1 2\n"},
		{"uchar overflow", "0 0 0 256\n1 0 0 1\n0 1 0 1\n3 0 1 2\n"},
		{"short list", cubeBody[:len(cubeBody)-len("3 0 1 2\n")] + "3 0 1\n"},
		{"long list", cubeBody[:len(cubeBody)-len("3 0 1 2\n")] + "2 0 1 2\n"},
		{"missing records", "0 0 0 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(cubeHeader + tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestMalformedRecordIndex(t *testing.T) {
	_, err := Decode(strings.NewReader(cubeHeader + "0 0 0 1\n1 0 0\n"))
	var re *MalformedRecordError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "vertex", re.Element)
	assert.Equal(t, 1, re.Index)
}

func TestTruncatedBinary(t *testing.T) {
	for _, format := range []Format{FormatBinaryLittleEndian, FormatBinaryBigEndian} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, sampleCloud(format)))
			full := buf.Bytes()

			// cut inside the last face and inside the first vertex
			for _, cut := range []int{len(full) - 2, len(full) - 1, bytes.Index(full, []byte("end_header\n")) + len("end_header\n") + 5} {
				p, err := Decode(bytes.NewReader(full[:cut]))
				assert.Nil(t, p)
				assert.ErrorIs(t, err, ErrMalformedRecord)
				assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			}
		})
	}
}

func TestNegativeListCount(t *testing.T) {
	hdr := "ply\nformat binary_big_endian 1.0\nelement face 1\nproperty list char int idx\nend_header\n"
	_, err := Decode(strings.NewReader(hdr + "\xff"))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = Decode(strings.NewReader("ply\nformat ascii 1.0\nelement face 1\nproperty list char int idx\nend_header\n-1\n"))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatASCII, FormatBinaryLittleEndian, FormatBinaryBigEndian} {
		t.Run(format.String(), func(t *testing.T) {
			want := sampleCloud(format)
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want))

			got, err := Decode(&buf)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Header{}, "PayloadOffset")); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			var again bytes.Buffer
			require.NoError(t, Encode(&again, got))
			var first bytes.Buffer
			require.NoError(t, Encode(&first, want))
			assert.Equal(t, first.Bytes(), again.Bytes())
		})
	}
}

func TestBinaryByteOrder(t *testing.T) {
	p := &Ply{
		Header: Header{Format: FormatBinaryBigEndian, Elements: []Element{
			{Name: "v", Properties: []Property{{Name: "a", Type: Uint16}, {Name: "b", Type: Float32}}},
		}},
		Records: map[string][]Record{"v": {{"a": uint16(0x0102), "b": float32(1)}}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))
	payload := buf.Bytes()[bytes.Index(buf.Bytes(), []byte("end_header\n"))+len("end_header\n"):]

	want := make([]byte, 6)
	binary.BigEndian.PutUint16(want, 0x0102)
	binary.BigEndian.PutUint32(want[2:], math.Float32bits(1))
	assert.Equal(t, want, payload)
}

func TestEncodeMissingValue(t *testing.T) {
	p := sampleCloud(FormatASCII)
	delete(p.Records["vertex"][1], "ring")
	err := Encode(io.Discard, p)
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestEncodeTypedList(t *testing.T) {
	p := sampleCloud(FormatBinaryLittleEndian)
	p.Records["face"][0]["vertex_indices"] = []int32{7, 8, 9}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(7), int32(8), int32(9)}, got.Records["face"][0]["vertex_indices"])
}

func TestMemoryAndDiskAgree(t *testing.T) {
	for _, format := range []Format{FormatASCII, FormatBinaryLittleEndian} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, sampleCloud(format)))

			path := filepath.Join(t.TempDir(), "cloud.ply")
			require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

			fromMem, err := Decode(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			fromDisk, err := ReadFile(path)
			require.NoError(t, err)
			if diff := cmp.Diff(fromDisk, fromMem); diff != "" {
				t.Errorf("memory and disk differ (-disk +mem):\n%s", diff)
			}
		})
	}
}

func TestEmptyElement(t *testing.T) {
	p := decodeString(t, "ply\nformat binary_little_endian 1.0\nelement vertex 0\nproperty float x\nend_header\n")
	assert.Empty(t, p.Records["vertex"])
	assert.Contains(t, p.Records, "vertex")
}

func TestHugeDeclaredCounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"binary records", "ply\nformat binary_little_endian 1.0\nelement vertex 100000000000000\nproperty float x\nend_header\n\x00\x00\x80\x3f"},
		{"ascii records", "ply\nformat ascii 1.0\nelement vertex 100000000000000\nproperty float x\nend_header\n1\n"},
		{"binary list", "ply\nformat binary_little_endian 1.0\nelement face 1\nproperty list uint int idx\nend_header\n\xff\xff\xff\xff\x01\x00\x00\x00"},
		{"ascii list", "ply\nformat ascii 1.0\nelement face 1\nproperty list uint int idx\nend_header\n4294967295 1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				p   *Ply
				err error
			)
			require.NotPanics(t, func() { p, err = Decode(strings.NewReader(tt.input)) })
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	tests := map[string]func(p *Ply){
		"uchar overflow":  func(p *Ply) { p.Records["vertex"][0]["red"] = 300 },
		"negative uint":   func(p *Ply) { p.Records["vertex"][0]["stamp"] = int64(-1) },
		"short overflow":  func(p *Ply) { p.Records["vertex"][1]["ring"] = int32(40000) },
		"fractional char": func(p *Ply) { p.Records["face"][0]["flags"] = 1.5 },
		"float overflow":  func(p *Ply) { p.Records["vertex"][2]["x"] = 1e300 },
		"list item":       func(p *Ply) { p.Records["face"][0]["vertex_indices"] = []int64{0, 1 << 40} },
		"list too long":   func(p *Ply) { p.Records["face"][1]["vertex_indices"] = make([]int32, 256) },
	}
	for name, mutate := range tests {
		for _, format := range []Format{FormatASCII, FormatBinaryLittleEndian, FormatBinaryBigEndian} {
			t.Run(name+"/"+format.String(), func(t *testing.T) {
				p := sampleCloud(format)
				mutate(p)
				assert.ErrorIs(t, Encode(io.Discard, p), ErrOutOfRange)
			})
		}
	}

	// the widest values of each type still encode
	p := sampleCloud(FormatBinaryLittleEndian)
	p.Records["face"][1]["vertex_indices"] = make([]int32, 255)
	p.Records["vertex"][0]["ring"] = math.MinInt16
	p.Records["vertex"][0]["stamp"] = uint64(math.MaxUint32)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Len(t, got.Records["face"][1]["vertex_indices"], 255)
	assert.Equal(t, int16(math.MinInt16), got.Records["vertex"][0]["ring"])
	assert.Equal(t, uint32(math.MaxUint32), got.Records["vertex"][0]["stamp"])
}
