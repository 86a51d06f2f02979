package blob

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// CodecID identifies the body compression codec recorded in the blob
// header.
type CodecID uint8

const (
	CodecIdentity CodecID = 0
	CodecSnappy   CodecID = 1
)

// Compressor wraps blob body streams. The default is identity;
// deployments trading CPU for blob-store bandwidth use snappy.
type Compressor interface {
	ID() CodecID
	Compress(w io.Writer) io.WriteCloser
	Decompress(r io.Reader) io.Reader
}

// CompressorFor returns the compressor for a codec id read from a blob
// header.
func CompressorFor(id CodecID) (Compressor, error) {
	switch id {
	case CodecIdentity:
		return IdentityCompressor{}, nil
	case CodecSnappy:
		return SnappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("blob: unknown codec %d", id)
	}
}

// IdentityCompressor passes streams through unchanged.
type IdentityCompressor struct{}

func (IdentityCompressor) ID() CodecID { return CodecIdentity }

func (IdentityCompressor) Compress(w io.Writer) io.WriteCloser {
	return nopWriteCloser{w}
}

func (IdentityCompressor) Decompress(r io.Reader) io.Reader { return r }

// SnappyCompressor frames blob bodies with snappy.
type SnappyCompressor struct{}

func (SnappyCompressor) ID() CodecID { return CodecSnappy }

func (SnappyCompressor) Compress(w io.Writer) io.WriteCloser {
	return snappy.NewBufferedWriter(w)
}

func (SnappyCompressor) Decompress(r io.Reader) io.Reader {
	return snappy.NewReader(r)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
