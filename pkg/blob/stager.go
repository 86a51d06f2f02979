package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/version"
)

// FilesystemStager stages cycle artifacts as files under a directory.
// Blobs write to a uuid-named temp file and rename into place on Finish,
// so a crashed cycle never leaves a partially written blob under a final
// name.
type FilesystemStager struct {
	dir    string
	comp   Compressor
	logger zerolog.Logger
}

// NewFilesystemStager creates the staging directory if needed. A nil
// compressor stages uncompressed bodies.
func NewFilesystemStager(dir string, comp Compressor) (*FilesystemStager, error) {
	if comp == nil {
		comp = IdentityCompressor{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create staging dir: %w", err)
	}
	return &FilesystemStager{
		dir:    dir,
		comp:   comp,
		logger: log.Component("stager"),
	}, nil
}

func (s *FilesystemStager) OpenSnapshot(to version.Version) (Blob, error) {
	name := fmt.Sprintf("snapshot-%s.blob", to)
	return s.open(KindSnapshot, version.None, to, name)
}

func (s *FilesystemStager) OpenDelta(from, to version.Version) (Blob, error) {
	name := fmt.Sprintf("delta-%s-%s.blob", from, to)
	return s.open(KindDelta, from, to, name)
}

func (s *FilesystemStager) OpenReverseDelta(from, to version.Version) (Blob, error) {
	name := fmt.Sprintf("reversedelta-%s-%s.blob", from, to)
	return s.open(KindReverseDelta, from, to, name)
}

func (s *FilesystemStager) open(kind Kind, from, to version.Version, name string) (Blob, error) {
	tmpPath := filepath.Join(s.dir, ".staging-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blob: open staging file: %w", err)
	}
	h := Header{Kind: kind, Codec: s.comp.ID(), From: from, To: to}
	if err := WriteHeader(f, h); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	s.logger.Debug().
		Stringer("kind", kind).
		Stringer("from", from).
		Stringer("to", to).
		Msg("Staged blob opened")
	return &fileBlob{
		kind:    kind,
		from:    from,
		to:      to,
		tmpPath: tmpPath,
		path:    filepath.Join(s.dir, name),
		f:       f,
		body:    s.comp.Compress(f),
		logger:  s.logger,
	}, nil
}

// fileBlob is a filesystem-staged blob.
type fileBlob struct {
	kind Kind
	from version.Version
	to   version.Version

	tmpPath string
	path    string
	f       *os.File
	body    io.WriteCloser

	mu       sync.Mutex
	finished bool
	cleaned  bool
	size     int64

	logger zerolog.Logger
}

func (b *fileBlob) Kind() Kind                   { return b.kind }
func (b *fileBlob) FromVersion() version.Version { return b.from }
func (b *fileBlob) ToVersion() version.Version   { return b.to }

func (b *fileBlob) Writer() io.Writer { return b.body }

func (b *fileBlob) Finish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return nil
	}
	if err := b.body.Close(); err != nil {
		return fmt.Errorf("blob: flush %s: %w", b.kind, err)
	}
	if err := b.f.Close(); err != nil {
		return fmt.Errorf("blob: close %s: %w", b.kind, err)
	}
	if err := os.Rename(b.tmpPath, b.path); err != nil {
		return fmt.Errorf("blob: seal %s: %w", b.kind, err)
	}
	info, err := os.Stat(b.path)
	if err != nil {
		return fmt.Errorf("blob: stat %s: %w", b.kind, err)
	}
	b.size = info.Size()
	b.finished = true
	return nil
}

func (b *fileBlob) Open() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finished {
		return nil, fmt.Errorf("blob: open %s before Finish", b.kind)
	}
	if b.cleaned {
		return nil, fmt.Errorf("blob: open %s after Cleanup", b.kind)
	}
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", b.kind, err)
	}
	return f, nil
}

func (b *fileBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *fileBlob) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cleaned {
		return nil
	}
	b.cleaned = true
	path := b.path
	if !b.finished {
		b.body.Close()
		b.f.Close()
		path = b.tmpPath
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: cleanup %s: %w", b.kind, err)
	}
	b.logger.Debug().
		Stringer("kind", b.kind).
		Stringer("to", b.to).
		Msg("Staged blob released")
	return nil
}

// Path returns the sealed blob's filesystem path.
func (b *fileBlob) Path() string { return b.path }
