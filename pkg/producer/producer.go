package producer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/version"
)

// Producer owns one dataset's delta chain. Once per cycle it prepares a
// write state, lets the populator fill it, stages and publishes the
// cycle's artifacts, proves their integrity, validates, announces, and
// commits — or rolls everything back. A producer runs one cycle at a
// time; RunCycle is not reentrant and callers serialize externally.
type Producer struct {
	mu sync.Mutex

	stager    blob.Stager
	publisher blob.Publisher
	announcer blob.Announcer

	validators []Validator
	events     *broadcaster

	minter           version.Minter
	snapshotExecutor Executor

	numStatesBetweenSnapshots  int
	numStatesUntilNextSnapshot int
	targetShardSize            int64

	schemas     []engine.Schema
	writeEngine *engine.WriteEngine
	holder      readStateHolder
	lastMinted  version.Version

	logger zerolog.Logger
}

// New constructs a producer. A publisher, an announcer, and either a
// stager or a staging directory are required; supplying a stager
// together with a staging dir or compressor is a construction-time
// error.
func New(opts ...Option) (*Producer, error) {
	timer := metrics.NewTimer()

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.publisher == nil {
		return nil, errors.New("producer: publisher is required")
	}
	if cfg.announcer == nil {
		return nil, errors.New("producer: announcer is required")
	}
	if cfg.stager != nil && (cfg.stagingDir != "" || cfg.compressor != nil) {
		return nil, errors.New("producer: stager and staging dir/compressor are mutually exclusive")
	}

	stager := cfg.stager
	if stager == nil {
		if cfg.stagingDir == "" {
			return nil, errors.New("producer: a stager or a staging dir is required")
		}
		var err error
		stager, err = blob.NewFilesystemStager(cfg.stagingDir, cfg.compressor)
		if err != nil {
			return nil, err
		}
	}

	minter := cfg.minter
	if minter == nil {
		minter = version.NewMonotonicMinter()
	}
	executor := cfg.snapshotExecutor
	if executor == nil {
		executor = InlineExecutor{}
	}
	shardSize := cfg.targetMaxTypeShardSize
	if shardSize <= 0 {
		shardSize = engine.DefaultTargetMaxTypeShardSize
	}

	we := engine.NewWriteEngine(engine.WithTargetMaxTypeShardSize(shardSize))
	for _, s := range cfg.schemas {
		if err := we.AddSchema(s); err != nil {
			return nil, err
		}
	}

	logger := log.Component("producer")
	p := &Producer{
		stager:                    stager,
		publisher:                 cfg.publisher,
		announcer:                 cfg.announcer,
		validators:                cfg.validators,
		events:                    newBroadcaster(cfg.listeners, logger),
		minter:                    minter,
		snapshotExecutor:          executor,
		numStatesBetweenSnapshots: cfg.numStatesBetweenSnapshots,
		targetShardSize:           shardSize,
		schemas:                   cfg.schemas,
		writeEngine:               we,
		lastMinted:                version.None,
		logger:                    logger,
	}
	p.events.producerInit(timer.Duration())
	return p, nil
}

// CurrentVersion returns the committed version, or version.None. Safe to
// call from any goroutine.
func (p *Producer) CurrentVersion() version.Version {
	if cur := p.holder.Current(); cur != nil {
		return cur.Version()
	}
	return version.None
}

// CurrentReadState returns the committed read state, or nil. Safe to
// call from any goroutine.
func (p *Producer) CurrentReadState() *ReadState {
	return p.holder.Current()
}

type cycleOutcome int

const (
	cycleFailed cycleOutcome = iota
	cycleProduced
	cycleNoDelta
)

// RunCycle performs one producer cycle. It returns the version now
// current: the freshly minted one when a state was produced, or the
// prior one on a no-delta or failed cycle. The returned error is non-nil
// only for validation failures; every other failure is reported through
// the cycle status, the listeners, and the log, keeping RunCycle total.
func (p *Producer) RunCycle(populate Populator) (version.Version, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	timer := metrics.NewTimer()
	toVersion := p.mint()
	logger := p.logger.With().Stringer("to_version", toVersion).Logger()

	p.events.cycleStart(toVersion)
	if !p.holder.HasCurrent() {
		logger.Info().Msg("Starting new delta chain")
		p.events.newDeltaChain(toVersion)
	}

	outcome, err := p.runCycle(toVersion, populate, logger)
	elapsed := timer.Duration()
	metrics.CycleDuration.Observe(elapsed.Seconds())

	switch outcome {
	case cycleProduced:
		metrics.CyclesTotal.WithLabelValues("produced").Inc()
		p.events.cycleComplete(statusSuccess(toVersion), elapsed)
		logger.Info().Dur("elapsed", elapsed).Msg("Cycle produced")
		return toVersion, nil
	case cycleNoDelta:
		metrics.CyclesTotal.WithLabelValues("nodelta").Inc()
		p.events.cycleComplete(statusSuccess(toVersion), elapsed)
		logger.Debug().Msg("No changes this cycle")
		return p.CurrentVersion(), nil
	default:
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		p.events.cycleComplete(statusFail(toVersion, err), elapsed)
		logger.Error().Err(err).Msg("Cycle failed")
		var verr *ValidationError
		if errors.As(err, &verr) {
			return p.CurrentVersion(), verr
		}
		return p.CurrentVersion(), nil
	}
}

// mint obtains the cycle's version and asserts minter monotonicity: a
// minter handing out a version at or below one already used would fork
// the delta chain, which is a programming error, not a cycle failure.
func (p *Producer) mint() version.Version {
	v := p.minter.Mint()
	floor := p.lastMinted
	if cur := p.holder.Current(); cur != nil && cur.Version() > floor {
		floor = cur.Version()
	}
	if !floor.IsNone() && v <= floor {
		panic(fmt.Sprintf("producer: version minter went backwards: minted %s after %s", v, floor))
	}
	p.lastMinted = v
	return v
}

func (p *Producer) runCycle(toVersion version.Version, populate Populator, logger zerolog.Logger) (cycleOutcome, error) {
	p.writeEngine.PrepareForNextCycle()
	ws := newWriteState(toVersion, p.writeEngine, p.holder.Current())
	defer ws.close()

	if err := p.runPopulate(toVersion, ws, populate); err != nil {
		p.writeEngine.ResetToLastPrepareForNextCycle()
		return cycleFailed, fmt.Errorf("populate: %w", err)
	}

	if !p.writeEngine.HasChangedSinceLastCycle() {
		p.writeEngine.ResetToLastPrepareForNextCycle()
		p.events.noDelta(toVersion)
		return cycleNoDelta, nil
	}

	arts := newArtifacts(logger)
	if err := p.runPublish(toVersion, arts); err != nil {
		p.rollback(arts)
		return cycleFailed, err
	}
	if err := p.runIntegrityCheck(toVersion, arts); err != nil {
		p.rollback(arts)
		return cycleFailed, err
	}
	if err := p.runValidation(toVersion); err != nil {
		p.rollback(arts)
		return cycleFailed, err
	}
	if err := p.runAnnouncement(toVersion); err != nil {
		p.rollback(arts)
		return cycleFailed, err
	}

	p.holder.commit()
	p.writeEngine.CommitCycle()
	arts.cleanup()
	return cycleProduced, nil
}

// rollback restores the pre-cycle state: populated edits are discarded,
// the read-state holder keeps its pre-cycle value, and staged blobs are
// released.
func (p *Producer) rollback(arts *artifacts) {
	p.writeEngine.ResetToLastPrepareForNextCycle()
	p.holder.rollback()
	arts.cleanup()
}

func (p *Producer) runPopulate(toVersion version.Version, ws *WriteState, populate Populator) error {
	timer := metrics.NewTimer()
	p.events.populateStart(toVersion)
	err := safePopulate(populate, ws)
	p.events.populateComplete(statusFor(toVersion, err), timer.Duration())
	return err
}

func safePopulate(populate Populator, ws *WriteState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("populator panicked: %v", r)
		}
	}()
	return populate(ws)
}

func (p *Producer) runPublish(toVersion version.Version, arts *artifacts) error {
	timer := metrics.NewTimer()
	p.events.publishStart(toVersion)
	err := p.stageAndPublish(toVersion, arts)
	p.events.publishComplete(statusFor(toVersion, err), timer.Duration())
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Producer) stageAndPublish(toVersion version.Version, arts *artifacts) error {
	cur := p.holder.Current()

	// Stage. A snapshot is always staged; deltas exist only when there
	// is a prior state to transition from.
	snap, err := p.stager.OpenSnapshot(toVersion)
	if err != nil {
		return err
	}
	arts.setSnapshot(snap)
	if err := writeBlob(snap, p.writeEngine.WriteSnapshot); err != nil {
		return err
	}

	if cur != nil {
		d, err := p.stager.OpenDelta(cur.Version(), toVersion)
		if err != nil {
			return err
		}
		arts.setDelta(d)
		if err := writeBlob(d, p.writeEngine.WriteDelta); err != nil {
			return err
		}

		rd, err := p.stager.OpenReverseDelta(toVersion, cur.Version())
		if err != nil {
			return err
		}
		arts.setReverseDelta(rd)
		if err := writeBlob(rd, p.writeEngine.WriteReverseDelta); err != nil {
			return err
		}

		// Deltas publish synchronously: the announcement that follows
		// is a promise that consumers can walk the chain.
		if err := p.publishArtifact(d); err != nil {
			return err
		}
		if err := p.publishArtifact(rd); err != nil {
			return err
		}
	}

	// Snapshot cadence. The first cycle of a chain and the every-cycle
	// default publish synchronously; a configured cadence publishes
	// through the snapshot executor when the countdown fires and skips
	// publication otherwise. A synchronous publish error fails the cycle;
	// skipped snapshots and failed deferred publications do not: the
	// delta chain stands on its own.
	if cur == nil || p.numStatesBetweenSnapshots == 0 {
		if err := p.publishArtifact(snap); err != nil {
			return err
		}
		arts.markSnapshotPublishComplete()
		return nil
	}

	p.numStatesUntilNextSnapshot--
	if p.numStatesUntilNextSnapshot < 0 {
		p.numStatesUntilNextSnapshot = p.numStatesBetweenSnapshots
		metrics.SnapshotsDeferredTotal.Inc()
		p.snapshotExecutor.Execute(func() {
			p.publishSnapshotDeferred(snap, arts)
		})
	} else {
		arts.markSnapshotPublishComplete()
	}
	return nil
}

func writeBlob(b blob.Blob, write func(io.Writer) error) error {
	if err := write(b.Writer()); err != nil {
		return fmt.Errorf("stage %s: %w", b.Kind(), err)
	}
	if err := b.Finish(); err != nil {
		return fmt.Errorf("stage %s: %w", b.Kind(), err)
	}
	return nil
}

func (p *Producer) publishArtifact(b blob.Blob) error {
	timer := metrics.NewTimer()
	err := p.publisher.Publish(b)
	p.events.artifactPublish(artifactStatus(b, err), timer.Duration())
	if err != nil {
		return fmt.Errorf("publish %s: %w", b.Kind(), err)
	}
	metrics.BlobsPublishedTotal.WithLabelValues(b.Kind().String()).Inc()
	metrics.BlobPublishedBytes.WithLabelValues(b.Kind().String()).Add(float64(b.Size()))
	return nil
}

// publishSnapshotDeferred runs on the snapshot executor. Failure is
// logged, not fatal: consumers catch up via deltas and cold-start from
// an earlier snapshot.
func (p *Producer) publishSnapshotDeferred(snap blob.Blob, arts *artifacts) {
	defer arts.markSnapshotPublishComplete()

	timer := metrics.NewTimer()
	err := safePublish(p.publisher, snap)
	p.events.artifactPublish(artifactStatus(snap, err), timer.Duration())
	if err != nil {
		p.logger.Warn().
			Err(err).
			Stringer("to_version", snap.ToVersion()).
			Msg("Deferred snapshot publish failed; delta chain remains valid")
		return
	}
	metrics.BlobsPublishedTotal.WithLabelValues(snap.Kind().String()).Inc()
	metrics.BlobPublishedBytes.WithLabelValues(snap.Kind().String()).Add(float64(snap.Size()))
}

func safePublish(pub blob.Publisher, b blob.Blob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return pub.Publish(b)
}

func (p *Producer) runValidation(toVersion version.Version) error {
	timer := metrics.NewTimer()
	p.events.validationStart(toVersion)
	err := p.runValidators(p.holder.newest())
	p.events.validationComplete(statusFor(toVersion, err), timer.Duration())
	return err
}

func (p *Producer) runAnnouncement(toVersion version.Version) error {
	timer := metrics.NewTimer()
	p.events.announcementStart(toVersion)
	err := p.announcer.Announce(toVersion)
	p.events.announcementComplete(statusFor(toVersion, err), timer.Duration())
	if err != nil {
		return fmt.Errorf("announce %s: %w", toVersion, err)
	}
	metrics.AnnouncedVersion.Set(float64(toVersion))
	return nil
}
