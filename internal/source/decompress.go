package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression identifies the encoding of a source stream.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// Detect returns the compression of a stream from its leading bytes.
func Detect(magic []byte) Compression {
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(magic, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

type decompressReader struct {
	io.Reader
	closers []func() error
}

func (d *decompressReader) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Decompress wraps rc so reads return decompressed bytes. The compression is
// sniffed from the stream, not taken from a file extension. Closing the
// result closes rc. On error rc is closed.
func Decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(rc, 256*1024)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		rc.Close()
		return nil, fmt.Errorf("reading stream header: %w", err)
	}

	switch Detect(magic) {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return &decompressReader{Reader: gz, closers: []func() error{gz.Close, rc.Close}}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		closeZstd := func() error {
			zr.Close()
			return nil
		}
		return &decompressReader{Reader: zr, closers: []func() error{closeZstd, rc.Close}}, nil
	default:
		return &decompressReader{Reader: br, closers: []func() error{rc.Close}}, nil
	}
}
