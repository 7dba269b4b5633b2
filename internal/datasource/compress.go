package datasource

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression names an input codec.
type Compression uint8

const (
	// CompressionAuto detects the codec from the name, then from magic bytes.
	CompressionAuto Compression = iota
	CompressionNone
	CompressionGzip
	CompressionZstd
	CompressionXZ
	CompressionLZ4
	CompressionBzip2
)

var compressionNames = map[Compression]string{
	CompressionAuto:  "auto",
	CompressionNone:  "none",
	CompressionGzip:  "gzip",
	CompressionZstd:  "zstd",
	CompressionXZ:    "xz",
	CompressionLZ4:   "lz4",
	CompressionBzip2: "bzip2",
}

func (c Compression) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression maps a flag value onto a Compression. Empty means auto.
func ParseCompression(s string) (Compression, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return CompressionAuto, nil
	case "gz":
		return CompressionGzip, nil
	case "zst":
		return CompressionZstd, nil
	case "bz2":
		return CompressionBzip2, nil
	}
	for c, name := range compressionNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// DetectCompression guesses the codec from a file name extension.
func DetectCompression(name string) Compression {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".xz":
		return CompressionXZ
	case ".lz4":
		return CompressionLZ4
	case ".bz2":
		return CompressionBzip2
	}
	return CompressionNone
}

var magics = []struct {
	prefix []byte
	codec  Compression
}{
	{[]byte{0x1f, 0x8b}, CompressionGzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, CompressionZstd},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, CompressionXZ},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, CompressionLZ4},
	{[]byte("BZh"), CompressionBzip2},
}

func sniff(b []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(b, m.prefix) {
			return m.codec
		}
	}
	return CompressionNone
}

// decompress wraps r for codec. Auto consults the name first and the leading
// bytes second. The returned close function may be nil.
func decompress(r io.Reader, name string, codec Compression) (io.Reader, Compression, func() error, error) {
	if codec == CompressionAuto {
		codec = DetectCompression(name)
		if codec == CompressionNone {
			br := bufio.NewReader(r)
			head, _ := br.Peek(6)
			codec = sniff(head)
			r = br
		}
	}

	switch codec {
	case CompressionNone:
		return r, codec, nil, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, codec, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, codec, zr.Close, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, codec, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, codec, func() error { zr.Close(); return nil }, nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, codec, nil, fmt.Errorf("xz: %w", err)
		}
		return xr, codec, nil, nil
	case CompressionLZ4:
		return lz4.NewReader(r), codec, nil, nil
	case CompressionBzip2:
		return bzip2.NewReader(r), codec, nil, nil
	}
	return nil, codec, nil, fmt.Errorf("unsupported compression %s", codec)
}
