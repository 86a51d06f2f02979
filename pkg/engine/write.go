package engine

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultTargetMaxTypeShardSize is the sizing hint used when the caller
// does not supply one: 16 MiB of encoded records per type shard.
const DefaultTargetMaxTypeShardSize = 16 << 20

// writeTypeState is the mutable staging area for one record type. Records
// are deduplicated by value: adding a record whose encoded bytes already
// exist returns the existing ordinal. Freed ordinals are reused so the
// ordinal space stays dense across cycles.
type writeTypeState struct {
	schema  Schema
	records map[int][]byte
	byHash  map[uint64][]int
	next    int
	free    []int
}

func newWriteTypeState(s Schema) *writeTypeState {
	return &writeTypeState{
		schema:  s.clone(),
		records: make(map[int][]byte),
		byHash:  make(map[uint64][]int),
	}
}

func (ts *writeTypeState) clone() *writeTypeState {
	out := &writeTypeState{
		schema:  ts.schema.clone(),
		records: make(map[int][]byte, len(ts.records)),
		byHash:  make(map[uint64][]int, len(ts.byHash)),
		next:    ts.next,
		free:    append([]int(nil), ts.free...),
	}
	for ord, rec := range ts.records {
		out.records[ord] = rec
	}
	for h, ords := range ts.byHash {
		out.byHash[h] = append([]int(nil), ords...)
	}
	return out
}

func (ts *writeTypeState) add(rec []byte) int {
	h := xxhash.Sum64(rec)
	for _, ord := range ts.byHash[h] {
		if bytes.Equal(ts.records[ord], rec) {
			return ord
		}
	}
	var ord int
	if len(ts.free) > 0 {
		// Reuse the smallest freed ordinal, so repopulating identical
		// content in the same order reproduces identical ordinals.
		idx := 0
		for i, o := range ts.free {
			if o < ts.free[idx] {
				idx = i
			}
		}
		ord = ts.free[idx]
		ts.free = append(ts.free[:idx], ts.free[idx+1:]...)
	} else {
		ord = ts.next
		ts.next++
	}
	ts.records[ord] = rec
	ts.byHash[h] = append(ts.byHash[h], ord)
	return ord
}

func (ts *writeTypeState) remove(ord int) bool {
	rec, ok := ts.records[ord]
	if !ok {
		return false
	}
	delete(ts.records, ord)
	h := xxhash.Sum64(rec)
	ords := ts.byHash[h]
	for i, o := range ords {
		if o == ord {
			ts.byHash[h] = append(ords[:i], ords[i+1:]...)
			break
		}
	}
	if len(ts.byHash[h]) == 0 {
		delete(ts.byHash, h)
	}
	ts.free = append(ts.free, ord)
	return true
}

func (ts *writeTypeState) equal(other *writeTypeState) bool {
	if len(ts.records) != len(other.records) {
		return false
	}
	for ord, rec := range ts.records {
		if !bytes.Equal(other.records[ord], rec) {
			return false
		}
	}
	return true
}

// encodedSize is the sum of record payload bytes, used for shard sizing.
func (ts *writeTypeState) encodedSize() int64 {
	var n int64
	for _, rec := range ts.records {
		n += int64(len(rec))
	}
	return n
}

// WriteEngine is the mutable staging engine for the next dataset version.
// Between cycles it carries the state of the last produced version as its
// baseline; PrepareForNextCycle hands the populator a working copy of that
// baseline, and the delta serializers encode the difference between the
// two.
type WriteEngine struct {
	mu              sync.Mutex
	targetShardSize int64
	schemas         map[string]Schema
	baseline        map[string]*writeTypeState
	current         map[string]*writeTypeState
}

// WriteOption configures a WriteEngine.
type WriteOption func(*WriteEngine)

// WithTargetMaxTypeShardSize sets the target upper bound, in bytes, for
// the encoded size of one type shard in snapshot blobs.
func WithTargetMaxTypeShardSize(n int64) WriteOption {
	return func(e *WriteEngine) {
		if n > 0 {
			e.targetShardSize = n
		}
	}
}

// NewWriteEngine creates an empty write engine.
func NewWriteEngine(opts ...WriteOption) *WriteEngine {
	e := &WriteEngine{
		targetShardSize: DefaultTargetMaxTypeShardSize,
		schemas:         make(map[string]Schema),
		baseline:        make(map[string]*writeTypeState),
		current:         make(map[string]*writeTypeState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddSchema registers a record type. Registering the same type name twice
// is an error; schema evolution is handled upstream of the engine.
func (e *WriteEngine) AddSchema(s Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.schemas[s.Name]; ok {
		return fmt.Errorf("engine: schema %q already registered", s.Name)
	}
	e.schemas[s.Name] = s.clone()
	e.current[s.Name] = newWriteTypeState(s)
	return nil
}

// Schemas returns the registered schemas sorted by type name.
func (e *WriteEngine) Schemas() []Schema {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Schema, 0, len(e.schemas))
	for _, name := range sortedKeys(e.schemas) {
		out = append(out, e.schemas[name].clone())
	}
	return out
}

// PrepareForNextCycle resets the working state to a copy of the baseline,
// so the populator starts the cycle from the last produced version.
func (e *WriteEngine) PrepareForNextCycle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

// ResetToLastPrepareForNextCycle discards every edit made since the last
// PrepareForNextCycle.
func (e *WriteEngine) ResetToLastPrepareForNextCycle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *WriteEngine) resetLocked() {
	next := make(map[string]*writeTypeState, len(e.schemas))
	for name, s := range e.schemas {
		if base, ok := e.baseline[name]; ok {
			next[name] = base.clone()
		} else {
			next[name] = newWriteTypeState(s)
		}
	}
	e.current = next
}

// HasChangedSinceLastCycle reports whether the working state differs from
// the last produced version.
func (e *WriteEngine) HasChangedSinceLastCycle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cur := range e.current {
		base, ok := e.baseline[name]
		if !ok {
			// A newly registered type with no records yet is not a change.
			if len(cur.records) > 0 {
				return true
			}
			continue
		}
		if !cur.equal(base) {
			return true
		}
	}
	for name, base := range e.baseline {
		if _, ok := e.current[name]; !ok && len(base.records) > 0 {
			return true
		}
	}
	return false
}

// CommitCycle rolls the baseline forward to the working state. The
// producer calls this once the cycle's version is announced.
func (e *WriteEngine) CommitCycle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make(map[string]*writeTypeState, len(e.current))
	for name, ts := range e.current {
		next[name] = ts.clone()
	}
	e.baseline = next
}

// Add stages one record and returns its ordinal. Value-equal records
// deduplicate to the same ordinal.
func (e *WriteEngine) Add(typeName string, vals Values) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.current[typeName]
	if !ok {
		return 0, fmt.Errorf("engine: unknown type %q", typeName)
	}
	rec, err := encodeRecord(ts.schema, vals)
	if err != nil {
		return 0, err
	}
	return ts.add(rec), nil
}

// Remove unstages the record at the given ordinal.
func (e *WriteEngine) Remove(typeName string, ordinal int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.current[typeName]
	if !ok {
		return fmt.Errorf("engine: unknown type %q", typeName)
	}
	if !ts.remove(ordinal) {
		return fmt.Errorf("engine: type %q has no record at ordinal %d", typeName, ordinal)
	}
	return nil
}

// RemoveAll unstages every record of the given type.
func (e *WriteEngine) RemoveAll(typeName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.current[typeName]
	if !ok {
		return fmt.Errorf("engine: unknown type %q", typeName)
	}
	for _, ord := range sortedOrdinals(ts.records) {
		ts.remove(ord)
	}
	return nil
}

// RecordCount returns the number of staged records for a type.
func (e *WriteEngine) RecordCount(typeName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.current[typeName]
	if !ok {
		return 0
	}
	return len(ts.records)
}

// WriteSnapshot serializes the full working state.
func (e *WriteEngine) WriteSnapshot(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return writeSnapshotBody(w, e.current, e.targetShardSize)
}

// WriteDelta serializes the edits transitioning the baseline to the
// working state.
func (e *WriteEngine) WriteDelta(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return writeDeltaBody(w, e.baseline, e.current)
}

// WriteReverseDelta serializes the edits transitioning the working state
// back to the baseline.
func (e *WriteEngine) WriteReverseDelta(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return writeDeltaBody(w, e.current, e.baseline)
}

// RestoreFrom rebuilds the baseline from a materialized read engine so
// the next cycle's delta continues the restored version's chain. Ordinal
// assignments carry over: gaps in the restored ordinal space become the
// free list, exactly as if this engine had produced the state itself.
func (e *WriteEngine) RestoreFrom(re *ReadEngine) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	baseline := make(map[string]*writeTypeState, len(re.types))
	for name, rts := range re.types {
		if reg, ok := e.schemas[name]; ok {
			if !schemasEqual(reg, rts.schema) {
				return fmt.Errorf("engine: restore: schema mismatch for type %q", name)
			}
		} else {
			e.schemas[name] = rts.schema.clone()
		}
		ts := newWriteTypeState(rts.schema)
		maxOrd := -1
		for ord, rec := range rts.records {
			ts.records[ord] = rec
			h := xxhash.Sum64(rec)
			ts.byHash[h] = append(ts.byHash[h], ord)
			if ord > maxOrd {
				maxOrd = ord
			}
		}
		ts.next = maxOrd + 1
		for ord := 0; ord <= maxOrd; ord++ {
			if _, ok := ts.records[ord]; !ok {
				ts.free = append(ts.free, ord)
			}
		}
		baseline[name] = ts
	}
	// Registered types absent from the restored state stay registered
	// with empty baselines.
	e.baseline = baseline
	e.resetLocked()
	return nil
}

// shardCount returns the smallest power of two such that encoded record
// bytes divided across that many shards stays under the target size.
func shardCount(ts *writeTypeState, target int64) int {
	if target <= 0 {
		return 1
	}
	n := 1
	for int64(n)*target < ts.encodedSize() {
		n <<= 1
	}
	return n
}

func schemasEqual(a, b Schema) bool {
	if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedOrdinals(m map[int][]byte) []int {
	ords := make([]int, 0, len(m))
	for ord := range m {
		ords = append(ords, ord)
	}
	sort.Ints(ords)
	return ords
}
