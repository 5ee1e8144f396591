package ply

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Decoder reads a PLY stream from any io.Reader. It never seeks or stats
// the source, so files, pipes and in-memory buffers behave the same.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r in a bufio.Reader unless it already is one, in which
// case reading stops right after the last payload record.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) Decode() (*Ply, error) {
	h, err := ReadHeader(d.r)
	if err != nil {
		return nil, err
	}
	records, err := ReadPayload(d.r, h)
	if err != nil {
		return nil, err
	}
	return &Ply{Header: *h, Records: records}, nil
}

// Reader returns the buffered reader positioned after the decoded data.
func (d *Decoder) Reader() *bufio.Reader {
	return d.r
}

func Decode(r io.Reader) (*Ply, error) {
	return NewDecoder(r).Decode()
}

func ReadFile(path string) (*Ply, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
