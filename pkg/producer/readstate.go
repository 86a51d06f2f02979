package producer

import (
	"sync/atomic"

	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/version"
)

// ReadState binds a version to its materialized read engine.
type ReadState struct {
	version version.Version
	engine  *engine.ReadEngine
}

// NewReadState wraps a materialized engine.
func NewReadState(v version.Version, e *engine.ReadEngine) *ReadState {
	return &ReadState{version: v, engine: e}
}

// Version returns the state's version.
func (s *ReadState) Version() version.Version { return s.version }

// Engine returns the materialized read engine.
func (s *ReadState) Engine() *engine.ReadEngine { return s.engine }

// readStateHolder owns at most two read states: the current one, visible
// to concurrent readers, and the cycle-confined pending one. The current
// pointer is the only cross-goroutine mutation in the producer; the
// atomic store at commit is its release barrier.
//
// Transitions over the holder's tiny state space:
//
//	empty      -> single        first committed cycle, or restore
//	single     -> pair          integrity check materializes pending
//	pair       -> pair          swap() exchanges the two slots
//	pair       -> single        commit() keeps the newer state,
//	                            rollback() keeps the older
type readStateHolder struct {
	current atomic.Pointer[ReadState]
	pending *ReadState
}

// Current returns the committed read state, or nil. Safe to call from
// any goroutine.
func (h *readStateHolder) Current() *ReadState {
	return h.current.Load()
}

// HasCurrent reports whether a state has been committed.
func (h *readStateHolder) HasCurrent() bool {
	return h.current.Load() != nil
}

// setPending installs the cycle's freshly materialized state.
func (h *readStateHolder) setPending(rs *ReadState) {
	h.pending = rs
}

// Pending returns the in-flight state, or nil.
func (h *readStateHolder) Pending() *ReadState {
	return h.pending
}

// newest returns the held state with the greatest version. Versions
// strictly ascend, so this is always the cycle's minted state once the
// pending slot is populated, regardless of whether swap ran.
func (h *readStateHolder) newest() *ReadState {
	cur := h.current.Load()
	pnd := h.pending
	switch {
	case pnd == nil:
		return cur
	case cur == nil:
		return pnd
	case pnd.Version() > cur.Version():
		return pnd
	default:
		return cur
	}
}

// swap exchanges the current and pending slots. The integrity check uses
// it after the reverse delta validates, adopting the re-materialized
// state into the current slot ahead of commit.
func (h *readStateHolder) swap() {
	cur := h.current.Load()
	h.current.Store(h.pending)
	h.pending = cur
}

// commit keeps the newer of the two held states as current and drops the
// other, ending the cycle.
func (h *readStateHolder) commit() {
	cur := h.current.Load()
	pnd := h.pending
	if pnd == nil {
		return
	}
	if cur == nil || pnd.Version() > cur.Version() {
		h.current.Store(pnd)
	}
	h.pending = nil
}

// rollback keeps the older of the two held states as current, undoing
// any swap, and drops the cycle's state.
func (h *readStateHolder) rollback() {
	cur := h.current.Load()
	pnd := h.pending
	if cur != nil && pnd != nil && cur.Version() > pnd.Version() {
		h.current.Store(pnd)
	}
	h.pending = nil
}

// install replaces the holder's content with a single current state.
// Used by restore.
func (h *readStateHolder) install(rs *ReadState) {
	h.pending = nil
	h.current.Store(rs)
}
