package producer

import (
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/version"
)

// runIntegrityCheck proves, before anything is announced, that the
// staged artifacts connect the current and pending states: the forward
// delta applied to the current state must checksum like the pending
// snapshot, and the reverse delta applied to the pending state must
// checksum like the current one. Every consumer path then converges to
// the same bytes.
func (p *Producer) runIntegrityCheck(toVersion version.Version, arts *artifacts) error {
	timer := metrics.NewTimer()
	p.events.integrityStart(toVersion)
	err := p.checkIntegrity(toVersion, arts)
	metrics.IntegrityCheckDuration.Observe(timer.Duration().Seconds())
	p.events.integrityComplete(statusFor(toVersion, err), timer.Duration())
	return err
}

func (p *Producer) checkIntegrity(toVersion version.Version, arts *artifacts) error {
	// Materialize the pending state from the staged snapshot through an
	// independent read engine, exactly as a cold-starting consumer
	// would.
	pnd := engine.NewReadEngine()
	if err := readBlobInto(arts.getSnapshot(), blob.KindSnapshot, pnd.ReadSnapshot); err != nil {
		return fmt.Errorf("integrity: materialize pending: %w", err)
	}
	p.holder.setPending(NewReadState(toVersion, pnd))

	cur := p.holder.Current()
	if cur == nil {
		// First state of the chain; there are no deltas to prove.
		return nil
	}

	delta, reverse := arts.getDelta(), arts.getReverseDelta()
	if delta == nil || reverse == nil {
		return fmt.Errorf("integrity: version %s has a prior state but is missing a delta direction", toVersion)
	}

	// Schema sets may differ between versions; checksums compare over
	// the intersection only.
	common := commonSchemas(cur.Engine(), pnd)
	currentChecksum := cur.Engine().Checksum(common)
	pendingChecksum := pnd.Checksum(common)

	forward := cur.Engine().Copy()
	if err := readBlobInto(delta, blob.KindDelta, forward.ApplyDelta); err != nil {
		return fmt.Errorf("integrity: apply delta: %w", err)
	}
	if forward.Checksum(common) != pendingChecksum {
		return &ChecksumError{Kind: blob.KindDelta}
	}

	reversed := pnd.Copy()
	if err := readBlobInto(reverse, blob.KindReverseDelta, reversed.ApplyDelta); err != nil {
		return fmt.Errorf("integrity: apply reverse delta: %w", err)
	}
	if reversed.Checksum(common) != currentChecksum {
		return &ChecksumError{Kind: blob.KindReverseDelta}
	}

	// Both directions proved. Swap so the newly materialized state holds
	// the current slot through commit; readers of the old state keep
	// their handles until the holder drops it.
	p.holder.swap()
	return nil
}

// readBlobInto opens a staged blob, verifies its header kind, and feeds
// the decompressed body to apply.
func readBlobInto(b blob.Blob, want blob.Kind, apply func(io.Reader) error) error {
	rc, err := b.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	h, body, err := blob.NewBodyReader(rc)
	if err != nil {
		return err
	}
	if h.Kind != want {
		return fmt.Errorf("expected %s blob, found %s", want, h.Kind)
	}
	return apply(body)
}

// commonSchemas returns the type names materialized in both engines.
func commonSchemas(a, b *engine.ReadEngine) []string {
	inB := make(map[string]bool)
	for _, n := range b.SchemaNames() {
		inB[n] = true
	}
	var names []string
	for _, n := range a.SchemaNames() {
		if inB[n] {
			names = append(names, n)
		}
	}
	return names
}
