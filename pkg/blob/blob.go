package blob

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/version"
)

// Kind identifies the artifact type of a blob.
type Kind uint8

const (
	KindSnapshot Kind = iota + 1
	KindDelta
	KindReverseDelta
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	case KindReverseDelta:
		return "reversedelta"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ErrNotFound is returned by retrievers when no blob satisfies the
// request.
var ErrNotFound = errors.New("blob: not found")

// Blob is one artifact of a producer cycle: staged, written once front to
// back, published, and finally cleaned up. Implementations never seek.
type Blob interface {
	Kind() Kind
	FromVersion() version.Version
	ToVersion() version.Version

	// Writer returns the body writer. Bytes written here land after the
	// header, through the stager's compressor.
	Writer() io.Writer

	// Finish seals the blob. No writes are accepted afterwards.
	Finish() error

	// Open returns the raw blob stream from the first header byte.
	// Callers usually wrap it with NewBodyReader.
	Open() (io.ReadCloser, error)

	// Size is the sealed blob's size in bytes; 0 before Finish.
	Size() int64

	// Cleanup releases the staged artifact. It is idempotent.
	Cleanup() error
}

// Stager opens writable blobs for the artifacts of one cycle.
type Stager interface {
	OpenSnapshot(to version.Version) (Blob, error)
	OpenDelta(from, to version.Version) (Blob, error)
	OpenReverseDelta(from, to version.Version) (Blob, error)
}

// Publisher persists a staged blob to the durable blob store.
type Publisher interface {
	Publish(b Blob) error
}

// Retriever fetches published blobs so a consumer can walk a version
// chain.
type Retriever interface {
	// RetrieveSnapshot returns the published snapshot with the greatest
	// to-version not exceeding desired, or ErrNotFound.
	RetrieveSnapshot(desired version.Version) (Blob, error)

	// RetrieveDelta returns the published forward delta departing the
	// given version, or ErrNotFound.
	RetrieveDelta(from version.Version) (Blob, error)
}

// Announcer publishes a new version id so consumers refresh.
type Announcer interface {
	Announce(v version.Version) error
}

const (
	headerMagic   = uint32(0x42555242) // "BRUB"
	formatVersion = uint8(1)
	headerSize    = 4 + 1 + 1 + 1 + 8 + 8
)

// Header prefixes every blob. It carries enough to verify a stream is
// the artifact the caller expects and to pick the body decompressor.
type Header struct {
	Kind  Kind
	Codec CodecID
	From  version.Version
	To    version.Version
}

// WriteHeader writes the fixed-size blob header.
func WriteHeader(w io.Writer, h Header) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], headerMagic)
	buf[4] = formatVersion
	buf[5] = byte(h.Kind)
	buf[6] = byte(h.Codec)
	binary.LittleEndian.PutUint64(buf[7:15], uint64(h.From))
	binary.LittleEndian.PutUint64(buf[15:23], uint64(h.To))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("blob: write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the fixed-size blob header.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("blob: read header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != headerMagic {
		return Header{}, fmt.Errorf("blob: bad magic %#x", magic)
	}
	if buf[4] != formatVersion {
		return Header{}, fmt.Errorf("blob: unsupported format version %d", buf[4])
	}
	h := Header{
		Kind:  Kind(buf[5]),
		Codec: CodecID(buf[6]),
		From:  version.Version(binary.LittleEndian.Uint64(buf[7:15])),
		To:    version.Version(binary.LittleEndian.Uint64(buf[15:23])),
	}
	if h.Kind < KindSnapshot || h.Kind > KindReverseDelta {
		return Header{}, fmt.Errorf("blob: unknown kind %d", buf[5])
	}
	return h, nil
}

// NewBodyReader reads the header off a raw blob stream and returns it
// together with a reader positioned at the decompressed body.
func NewBodyReader(r io.Reader) (Header, io.Reader, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	comp, err := CompressorFor(h.Codec)
	if err != nil {
		return Header{}, nil, err
	}
	return h, comp.Decompress(r), nil
}
