package producer

import (
	"fmt"
	"sync/atomic"

	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/version"
)

// WriteState is the populator's mutable view of the next dataset
// version. It is valid only for the duration of the populate phase; the
// engine rejects writes once the cycle has moved on.
type WriteState struct {
	version version.Version
	engine  *engine.WriteEngine
	prior   *ReadState
	closed  atomic.Bool
}

func newWriteState(v version.Version, e *engine.WriteEngine, prior *ReadState) *WriteState {
	return &WriteState{version: v, engine: e, prior: prior}
}

// Version returns the version this state is being populated for.
func (ws *WriteState) Version() version.Version { return ws.version }

// PriorState returns the read state of the last produced version, or nil
// on the first cycle of a delta chain.
func (ws *WriteState) PriorState() *ReadState { return ws.prior }

// Add stages one record and returns its ordinal. Value-equal records
// deduplicate to the same ordinal.
func (ws *WriteState) Add(typeName string, vals engine.Values) (int, error) {
	if ws.closed.Load() {
		return 0, fmt.Errorf("producer: write state for version %s used after its cycle", ws.version)
	}
	return ws.engine.Add(typeName, vals)
}

// Remove unstages the record at the given ordinal.
func (ws *WriteState) Remove(typeName string, ordinal int) error {
	if ws.closed.Load() {
		return fmt.Errorf("producer: write state for version %s used after its cycle", ws.version)
	}
	return ws.engine.Remove(typeName, ordinal)
}

// RemoveAll unstages every record of the given type.
func (ws *WriteState) RemoveAll(typeName string) error {
	if ws.closed.Load() {
		return fmt.Errorf("producer: write state for version %s used after its cycle", ws.version)
	}
	return ws.engine.RemoveAll(typeName)
}

func (ws *WriteState) close() {
	ws.closed.Store(true)
}

// Populator fills the write state for one cycle. Returning an error, or
// panicking, aborts the cycle and rolls the write engine back to its
// prepared state.
type Populator func(ws *WriteState) error
