package producer

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/consumer"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/version"
)

// Restore boots the producer from a previously published version so the
// next cycle produces a delta continuous with history. The desired
// version must be reached exactly; reaching any other version fails the
// restore and leaves the producer untouched. Restoring version.None is a
// no-op.
func (p *Producer) Restore(desired version.Version, retriever blob.Retriever) (RestoreStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	timer := metrics.NewTimer()
	p.events.restoreStart(desired)
	st := p.restore(desired, retriever)
	p.events.restoreComplete(st, timer.Duration())

	if st.Success {
		metrics.RestoresTotal.WithLabelValues("success").Inc()
		p.logger.Info().
			Stringer("version", st.Reached).
			Msg("Restored producer state")
	} else {
		metrics.RestoresTotal.WithLabelValues("failed").Inc()
		p.logger.Error().
			Err(st.Err).
			Stringer("desired", desired).
			Msg("Restore failed")
	}
	return st, st.Err
}

func (p *Producer) restore(desired version.Version, retriever blob.Retriever) RestoreStatus {
	if desired.IsNone() {
		return RestoreStatus{Desired: desired, Reached: version.None, Success: true}
	}

	// Walk the published chain with a transient consumer.
	c := consumer.New(retriever)
	if err := c.RefreshTo(desired); err != nil {
		return RestoreStatus{
			Desired: desired,
			Reached: c.CurrentVersion(),
			Err:     fmt.Errorf("restore: %w", err),
		}
	}
	reached := c.CurrentVersion()
	if reached != desired {
		err := &RestoreMismatchError{Desired: desired, Reached: reached}
		return RestoreStatus{Desired: desired, Reached: reached, Err: err}
	}

	// Restoring into a live, possibly populated write engine is
	// undefined. Rehydrate a fresh engine and swap the reference only
	// once it is fully initialized, so a failed restore can never leave
	// a half-built engine visible.
	we := engine.NewWriteEngine(engine.WithTargetMaxTypeShardSize(p.targetShardSize))
	for _, s := range p.schemas {
		if err := we.AddSchema(s); err != nil {
			return RestoreStatus{Desired: desired, Reached: reached, Err: err}
		}
	}
	if err := we.RestoreFrom(c.ReadEngine()); err != nil {
		return RestoreStatus{Desired: desired, Reached: reached, Err: fmt.Errorf("restore: %w", err)}
	}

	p.writeEngine = we
	p.holder.install(NewReadState(reached, c.ReadEngine()))
	p.numStatesUntilNextSnapshot = p.numStatesBetweenSnapshots
	if reached > p.lastMinted {
		p.lastMinted = reached
	}
	return RestoreStatus{Desired: desired, Reached: reached, Success: true}
}
