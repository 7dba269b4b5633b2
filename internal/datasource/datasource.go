// Package datasource prepares raw input for a parse run: it opens a source,
// counts the raw bytes read for progress, and undoes compression and
// character encoding so the tokenizers always see UTF-8 text.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// Source is a byte source that can be opened once per run.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)

	// Name identifies the source (a file name or URL path) and drives
	// compression detection by extension.
	Name() string
}

// Sizer is implemented by sources that know their raw size. Size is called
// after Open and returns -1 when the size is unknown.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// Options selects the decoding applied on top of the raw bytes.
type Options struct {
	Compression Compression

	// Charset names the input encoding (WHATWG labels such as "latin1",
	// "windows-1250", "utf-16le"). Empty means UTF-8.
	Charset string
}

// Input is an opened, decoded source.
type Input struct {
	io.Reader

	// Size is the raw size in bytes, or -1 when the source does not know it.
	Size int64

	// Compression is the codec actually applied.
	Compression Compression

	counter *countingReader
	closers []func() error
	decoded bool
}

// Open opens src and layers decompression and transcoding per opts.
func Open(ctx context.Context, src Source, opts Options) (*Input, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	in := &Input{Size: -1, closers: []func() error{rc.Close}}

	if s, ok := src.(Sizer); ok {
		n, err := s.Size(ctx)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("datasource: size of %s: %w", src.Name(), err)
		}
		in.Size = n
	}

	in.counter = &countingReader{r: rc}
	r, codec, closeFn, err := decompress(in.counter, src.Name(), opts.Compression)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("datasource: %s: %w", src.Name(), err)
	}
	in.Compression = codec
	if closeFn != nil {
		in.closers = append([]func() error{closeFn}, in.closers...)
	}

	dec, transcoded, err := charsetReader(r, opts.Charset)
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("datasource: %s: %w", src.Name(), err)
	}

	in.Reader = dec
	in.decoded = codec != CompressionNone || transcoded
	return in, nil
}

// BytesRead returns the raw bytes pulled from the source so far. For decoded
// input this runs ahead of what the tokenizer consumed by at most the
// decoder's buffering.
func (in *Input) BytesRead() int64 { return in.counter.n.Load() }

// Decoded reports whether compression or transcoding sits between the raw
// bytes and Reader, in which case tokenizer offsets are not raw offsets.
func (in *Input) Decoded() bool { return in.decoded }

// Close releases the decoders and the source.
func (in *Input) Close() error {
	var errs []error
	for _, c := range in.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return errors.Join(errs...)
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
