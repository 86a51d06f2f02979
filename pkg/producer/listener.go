package producer

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/version"
)

// Listener receives producer lifecycle callbacks. Callbacks run on the
// cycle goroutine, except OnArtifactPublish for deferred snapshot
// publication, which runs on the snapshot executor's goroutine. A
// panicking listener never fails a cycle; the panic is swallowed and
// logged.
//
// Embed NoopListener to implement a subset.
type Listener interface {
	OnProducerInit(elapsed time.Duration)

	OnCycleStart(toVersion version.Version)
	OnCycleComplete(status Status, elapsed time.Duration)

	// OnNewDeltaChain fires when a cycle starts with no current read
	// state, so its snapshot begins a new delta chain.
	OnNewDeltaChain(toVersion version.Version)

	// OnNoDeltaAvailable fires when the populator ran but the write
	// engine reports no change; no version is announced.
	OnNoDeltaAvailable(toVersion version.Version)

	OnPopulateStart(toVersion version.Version)
	OnPopulateComplete(status Status, elapsed time.Duration)

	OnPublishStart(toVersion version.Version)
	OnArtifactPublish(status ArtifactStatus, elapsed time.Duration)
	OnPublishComplete(status Status, elapsed time.Duration)

	OnIntegrityCheckStart(toVersion version.Version)
	OnIntegrityCheckComplete(status Status, elapsed time.Duration)

	OnValidationStart(toVersion version.Version)
	OnValidationComplete(status Status, elapsed time.Duration)

	OnAnnouncementStart(toVersion version.Version)
	OnAnnouncementComplete(status Status, elapsed time.Duration)

	OnRestoreStart(desired version.Version)
	OnRestoreComplete(status RestoreStatus, elapsed time.Duration)
}

// NoopListener implements Listener with empty callbacks.
type NoopListener struct{}

func (NoopListener) OnProducerInit(time.Duration)                    {}
func (NoopListener) OnCycleStart(version.Version)                    {}
func (NoopListener) OnCycleComplete(Status, time.Duration)           {}
func (NoopListener) OnNewDeltaChain(version.Version)                 {}
func (NoopListener) OnNoDeltaAvailable(version.Version)              {}
func (NoopListener) OnPopulateStart(version.Version)                 {}
func (NoopListener) OnPopulateComplete(Status, time.Duration)        {}
func (NoopListener) OnPublishStart(version.Version)                  {}
func (NoopListener) OnArtifactPublish(ArtifactStatus, time.Duration) {}
func (NoopListener) OnPublishComplete(Status, time.Duration)         {}
func (NoopListener) OnIntegrityCheckStart(version.Version)          {}
func (NoopListener) OnIntegrityCheckComplete(Status, time.Duration) {}
func (NoopListener) OnValidationStart(version.Version)              {}
func (NoopListener) OnValidationComplete(Status, time.Duration)     {}
func (NoopListener) OnAnnouncementStart(version.Version)            {}
func (NoopListener) OnAnnouncementComplete(Status, time.Duration)   {}
func (NoopListener) OnRestoreStart(version.Version)                 {}
func (NoopListener) OnRestoreComplete(RestoreStatus, time.Duration) {}

// broadcaster fans lifecycle events out to the registered listeners
// inside a panic boundary.
type broadcaster struct {
	listeners []Listener
	logger    zerolog.Logger
}

func newBroadcaster(listeners []Listener, logger zerolog.Logger) *broadcaster {
	return &broadcaster{listeners: listeners, logger: logger}
}

func (b *broadcaster) fire(event string, fn func(Listener)) {
	for _, l := range b.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().
						Str("event", event).
						Any("panic", r).
						Msg("Listener panicked")
				}
			}()
			fn(l)
		}()
	}
}

func (b *broadcaster) producerInit(elapsed time.Duration) {
	b.fire("producer-init", func(l Listener) { l.OnProducerInit(elapsed) })
}

func (b *broadcaster) cycleStart(v version.Version) {
	b.fire("cycle-start", func(l Listener) { l.OnCycleStart(v) })
}

func (b *broadcaster) cycleComplete(st Status, elapsed time.Duration) {
	b.fire("cycle-complete", func(l Listener) { l.OnCycleComplete(st, elapsed) })
}

func (b *broadcaster) newDeltaChain(v version.Version) {
	b.fire("new-delta-chain", func(l Listener) { l.OnNewDeltaChain(v) })
}

func (b *broadcaster) noDelta(v version.Version) {
	b.fire("no-delta", func(l Listener) { l.OnNoDeltaAvailable(v) })
}

func (b *broadcaster) populateStart(v version.Version) {
	b.fire("populate-start", func(l Listener) { l.OnPopulateStart(v) })
}

func (b *broadcaster) populateComplete(st Status, elapsed time.Duration) {
	b.fire("populate-complete", func(l Listener) { l.OnPopulateComplete(st, elapsed) })
}

func (b *broadcaster) publishStart(v version.Version) {
	b.fire("publish-start", func(l Listener) { l.OnPublishStart(v) })
}

func (b *broadcaster) artifactPublish(st ArtifactStatus, elapsed time.Duration) {
	b.fire("artifact-publish", func(l Listener) { l.OnArtifactPublish(st, elapsed) })
}

func (b *broadcaster) publishComplete(st Status, elapsed time.Duration) {
	b.fire("publish-complete", func(l Listener) { l.OnPublishComplete(st, elapsed) })
}

func (b *broadcaster) integrityStart(v version.Version) {
	b.fire("integrity-start", func(l Listener) { l.OnIntegrityCheckStart(v) })
}

func (b *broadcaster) integrityComplete(st Status, elapsed time.Duration) {
	b.fire("integrity-complete", func(l Listener) { l.OnIntegrityCheckComplete(st, elapsed) })
}

func (b *broadcaster) validationStart(v version.Version) {
	b.fire("validation-start", func(l Listener) { l.OnValidationStart(v) })
}

func (b *broadcaster) validationComplete(st Status, elapsed time.Duration) {
	b.fire("validation-complete", func(l Listener) { l.OnValidationComplete(st, elapsed) })
}

func (b *broadcaster) announcementStart(v version.Version) {
	b.fire("announcement-start", func(l Listener) { l.OnAnnouncementStart(v) })
}

func (b *broadcaster) announcementComplete(st Status, elapsed time.Duration) {
	b.fire("announcement-complete", func(l Listener) { l.OnAnnouncementComplete(st, elapsed) })
}

func (b *broadcaster) restoreStart(v version.Version) {
	b.fire("restore-start", func(l Listener) { l.OnRestoreStart(v) })
}

func (b *broadcaster) restoreComplete(st RestoreStatus, elapsed time.Duration) {
	b.fire("restore-complete", func(l Listener) { l.OnRestoreComplete(st, elapsed) })
}
