package producer

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/blob"
)

// artifacts holds the up-to-three blobs staged during one cycle. Delta
// and reverse delta are released as soon as the cycle asks for cleanup;
// the snapshot may still be publishing on the snapshot executor when the
// next cycle starts, so its release waits until both cleanup has been
// requested and publication has reported complete, whichever comes last.
// The mutex is the only synchronization between the cycle goroutine and
// the executor goroutine.
type artifacts struct {
	mu sync.Mutex

	snapshot     blob.Blob
	delta        blob.Blob
	reverseDelta blob.Blob

	cleanupRequested    bool
	snapshotPublishDone bool

	logger zerolog.Logger
}

func newArtifacts(logger zerolog.Logger) *artifacts {
	return &artifacts{logger: logger}
}

func (a *artifacts) setSnapshot(b blob.Blob) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = b
}

func (a *artifacts) setDelta(b blob.Blob) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delta = b
}

func (a *artifacts) setReverseDelta(b blob.Blob) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reverseDelta = b
}

func (a *artifacts) getSnapshot() blob.Blob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

func (a *artifacts) getDelta() blob.Blob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delta
}

func (a *artifacts) getReverseDelta() blob.Blob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reverseDelta
}

// markSnapshotPublishComplete signals that snapshot publication finished
// (or was skipped, or failed terminally). Idempotent.
func (a *artifacts) markSnapshotPublishComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshotPublishDone = true
	a.maybeReleaseSnapshotLocked()
}

// cleanup releases the delta and reverse delta immediately and the
// snapshot once its publication has completed. Idempotent; each blob is
// released exactly once.
func (a *artifacts) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupRequested = true
	if a.delta != nil {
		a.releaseLocked(a.delta)
		a.delta = nil
	}
	if a.reverseDelta != nil {
		a.releaseLocked(a.reverseDelta)
		a.reverseDelta = nil
	}
	a.maybeReleaseSnapshotLocked()
}

func (a *artifacts) maybeReleaseSnapshotLocked() {
	if !a.cleanupRequested || !a.snapshotPublishDone || a.snapshot == nil {
		return
	}
	a.releaseLocked(a.snapshot)
	a.snapshot = nil
}

func (a *artifacts) releaseLocked(b blob.Blob) {
	if err := b.Cleanup(); err != nil {
		a.logger.Warn().Err(err).Stringer("kind", b.Kind()).Msg("Blob cleanup failed")
	}
}
