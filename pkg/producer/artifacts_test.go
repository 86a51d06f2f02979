package producer

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/version"
)

// countingBlob counts Cleanup calls.
type countingBlob struct {
	kind blob.Kind

	mu       sync.Mutex
	cleanups int
}

func (b *countingBlob) Kind() blob.Kind                 { return b.kind }
func (b *countingBlob) FromVersion() version.Version    { return version.None }
func (b *countingBlob) ToVersion() version.Version      { return 1001 }
func (b *countingBlob) Writer() io.Writer               { return io.Discard }
func (b *countingBlob) Finish() error                   { return nil }
func (b *countingBlob) Open() (io.ReadCloser, error)    { return nil, nil }
func (b *countingBlob) Size() int64                     { return 0 }

func (b *countingBlob) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanups++
	return nil
}

func (b *countingBlob) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanups
}

func newTestArtifacts() (*artifacts, *countingBlob, *countingBlob, *countingBlob) {
	snap := &countingBlob{kind: blob.KindSnapshot}
	delta := &countingBlob{kind: blob.KindDelta}
	reverse := &countingBlob{kind: blob.KindReverseDelta}

	a := newArtifacts(log.Component("test"))
	a.setSnapshot(snap)
	a.setDelta(delta)
	a.setReverseDelta(reverse)
	return a, snap, delta, reverse
}

func TestArtifactsCleanupIsIdempotent(t *testing.T) {
	a, snap, delta, reverse := newTestArtifacts()
	a.markSnapshotPublishComplete()

	a.cleanup()
	a.cleanup()

	assert.Equal(t, 1, snap.count(), "each blob released exactly once")
	assert.Equal(t, 1, delta.count())
	assert.Equal(t, 1, reverse.count())
}

func TestArtifactsSnapshotOutlivesCleanupUntilPublishComplete(t *testing.T) {
	a, snap, delta, reverse := newTestArtifacts()

	a.cleanup()
	assert.Equal(t, 1, delta.count(), "deltas release immediately")
	assert.Equal(t, 1, reverse.count())
	assert.Equal(t, 0, snap.count(), "snapshot survives a pending publication")

	a.markSnapshotPublishComplete()
	assert.Equal(t, 1, snap.count())
	a.markSnapshotPublishComplete()
	assert.Equal(t, 1, snap.count())
}

func TestArtifactsPublishCompleteBeforeCleanup(t *testing.T) {
	a, snap, _, _ := newTestArtifacts()

	a.markSnapshotPublishComplete()
	assert.Equal(t, 0, snap.count(), "publication alone does not release")

	a.cleanup()
	assert.Equal(t, 1, snap.count())
}
