// Package loader reads PLY clouds from plain or gzip-compressed files using
// one of several delivery strategies: through a temporary file on disk,
// through an in-memory buffer, or streamed straight out of the decompressor.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"plycloud/pkg/ply"
)

var ErrUnsupportedExtension = errors.New("unsupported point cloud file extension")

// Strategy loads a PLY file from path.
type Strategy func(path string) (*ply.Ply, error)

const (
	NameDisk   = "disk"
	NameMemory = "memory"
	NameStream = "stream"
)

// Strategies lists every loading strategy by name.
var Strategies = map[string]Strategy{
	NameDisk:   ThroughDisk,
	NameMemory: ThroughMemory,
	NameStream: Streaming,
}

func StrategyNames() []string {
	return []string{NameDisk, NameMemory, NameStream}
}

func Lookup(name string) (Strategy, error) {
	s, ok := Strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown loading strategy %q", name)
	}
	return s, nil
}

// UnzipPly decompresses a .ply.gz file to dst. An empty dst writes next to
// src with the .gz suffix removed. It returns the path written.
func UnzipPly(src, dst string) (out string, err error) {
	if dst == "" {
		if !strings.EqualFold(filepath.Ext(src), ".gz") {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedExtension, src)
		}
		dst = strings.TrimSuffix(src, filepath.Ext(src))
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("gunzip %s: %w", src, err)
	}
	defer zr.Close()

	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	if _, err = io.Copy(f, zr); err != nil {
		return "", fmt.Errorf("gunzip %s: %w", src, err)
	}
	return dst, nil
}

// ThroughDisk unzips path next to itself, parses the unzipped file and
// removes it again.
func ThroughDisk(path string) (*ply.Ply, error) {
	out, err := UnzipPly(path, "")
	if err != nil {
		return nil, err
	}
	defer os.Remove(out)
	log.Debug().Str("src", path).Str("tmp", out).Msg("unzipped to disk")
	return ply.ReadFile(out)
}

// ThroughMemory reads the compressed bytes, inflates them into a buffer
// and parses the buffer.
func ThroughMemory(path string) (*ply.Ply, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := Gunzip(compressed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().Str("src", path).Int("compressed", len(compressed)).Int("size", len(data)).Msg("inflated in memory")
	p, err := ply.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Streaming parses directly from the decompressor without buffering the
// whole file.
func Streaming(path string) (*ply.Ply, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gunzip %s: %w", path, err)
	}
	defer zr.Close()
	p, err := ply.Decode(zr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Gunzip inflates a complete gzip member set held in memory.
func Gunzip(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Gzip compresses p into w.
func Gzip(w io.Writer, p *ply.Ply) error {
	zw := gzip.NewWriter(w)
	if err := ply.Encode(zw, p); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Open loads .ply.gz files in memory and plain .ply files directly.
func Open(path string) (*ply.Ply, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return ThroughMemory(path)
	case ".ply":
		return ply.ReadFile(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, path)
}

// Decode reads a PLY stream from r, inflating it first when gz is set.
func Decode(r io.Reader, gz bool) (*ply.Ply, error) {
	if !gz {
		return ply.Decode(r)
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ply.Decode(zr)
}

// IsPly reports whether name looks like a plain or gzip-compressed PLY file.
func IsPly(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".ply") || strings.HasSuffix(lower, ".ply.gz")
}
