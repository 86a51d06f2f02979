package producer

import (
	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/version"
)

// Executor runs deferred snapshot publication. The default runs inline
// on the cycle goroutine.
type Executor interface {
	Execute(fn func())
}

// InlineExecutor runs work synchronously on the caller's goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Execute(fn func()) { fn() }

// GoroutineExecutor runs each task on its own goroutine, taking snapshot
// publication off the cycle's hot path.
type GoroutineExecutor struct{}

func (GoroutineExecutor) Execute(fn func()) { go fn() }

type config struct {
	stager     blob.Stager
	stagingDir string
	compressor blob.Compressor

	publisher blob.Publisher
	announcer blob.Announcer

	validators []Validator
	listeners  []Listener

	minter           version.Minter
	snapshotExecutor Executor

	numStatesBetweenSnapshots int
	targetMaxTypeShardSize    int64

	schemas []engine.Schema
}

// Option configures a Producer at construction time.
type Option func(*config)

// WithPublisher sets the blob publisher. Required.
func WithPublisher(p blob.Publisher) Option {
	return func(c *config) { c.publisher = p }
}

// WithAnnouncer sets the version announcer. Required.
func WithAnnouncer(a blob.Announcer) Option {
	return func(c *config) { c.announcer = a }
}

// WithValidators appends validators, run in order against every pending
// state.
func WithValidators(vs ...Validator) Option {
	return func(c *config) { c.validators = append(c.validators, vs...) }
}

// WithListeners appends lifecycle listeners.
func WithListeners(ls ...Listener) Option {
	return func(c *config) { c.listeners = append(c.listeners, ls...) }
}

// WithStager sets a custom blob stager. Mutually exclusive with
// WithStagingDir and WithCompressor.
func WithStager(s blob.Stager) Option {
	return func(c *config) { c.stager = s }
}

// WithStagingDir stages blobs as files under dir using the configured
// compressor. Mutually exclusive with WithStager.
func WithStagingDir(dir string) Option {
	return func(c *config) { c.stagingDir = dir }
}

// WithCompressor sets the body compressor for the filesystem stager.
// Mutually exclusive with WithStager.
func WithCompressor(comp blob.Compressor) Option {
	return func(c *config) { c.compressor = comp }
}

// WithVersionMinter replaces the default wall-clock-seeded minter. The
// producer asserts that minted versions strictly ascend.
func WithVersionMinter(m version.Minter) Option {
	return func(c *config) { c.minter = m }
}

// WithSnapshotPublishExecutor sets the executor for deferred snapshot
// publication. Default is inline.
func WithSnapshotPublishExecutor(e Executor) Option {
	return func(c *config) { c.snapshotExecutor = e }
}

// WithNumStatesBetweenSnapshots sets the snapshot cadence: 0 publishes a
// snapshot synchronously every cycle; k >= 1 publishes one via the
// snapshot executor every k+1 producing cycles.
func WithNumStatesBetweenSnapshots(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.numStatesBetweenSnapshots = n
		}
	}
}

// WithTargetMaxTypeShardSize forwards a shard sizing hint, in bytes, to
// the write engine. Default 16 MiB.
func WithTargetMaxTypeShardSize(n int64) Option {
	return func(c *config) { c.targetMaxTypeShardSize = n }
}

// WithSchemas registers the dataset's record types.
func WithSchemas(ss ...engine.Schema) Option {
	return func(c *config) { c.schemas = append(c.schemas, ss...) }
}
