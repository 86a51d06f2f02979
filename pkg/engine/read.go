package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// readTypeState is the immutable materialization of one record type.
type readTypeState struct {
	schema     Schema
	shardCount int
	records    map[int][]byte
}

func (ts *readTypeState) copy() *readTypeState {
	out := &readTypeState{
		schema:     ts.schema.clone(),
		shardCount: ts.shardCount,
		records:    make(map[int][]byte, len(ts.records)),
	}
	for ord, rec := range ts.records {
		out.records[ord] = rec
	}
	return out
}

// ReadEngine materializes one published dataset version in memory.
// Records are reachable by ordinal in O(1) without allocation. A read
// engine is mutated only by snapshot load and delta application; the
// producer hands consumers an engine that is never written again.
type ReadEngine struct {
	types map[string]*readTypeState
}

// NewReadEngine creates an empty read engine.
func NewReadEngine() *ReadEngine {
	return &ReadEngine{types: make(map[string]*readTypeState)}
}

// ReadSnapshot loads a full serialized state, replacing any prior
// content.
func (e *ReadEngine) ReadSnapshot(r io.Reader) error {
	br := newBodyReader(r)
	typeCount, err := br.uvarint()
	if err != nil {
		return fmt.Errorf("engine: read snapshot: %w", err)
	}
	types := make(map[string]*readTypeState, typeCount)
	for i := uint64(0); i < typeCount; i++ {
		s, err := br.schema()
		if err != nil {
			return fmt.Errorf("engine: read snapshot: %w", err)
		}
		shards, err := br.uvarint()
		if err != nil {
			return fmt.Errorf("engine: read snapshot %q: %w", s.Name, err)
		}
		recCount, err := br.uvarint()
		if err != nil {
			return fmt.Errorf("engine: read snapshot %q: %w", s.Name, err)
		}
		ts := &readTypeState{
			schema:     s,
			shardCount: int(shards),
			records:    make(map[int][]byte, recCount),
		}
		for j := uint64(0); j < recCount; j++ {
			ord, err := br.uvarint()
			if err != nil {
				return fmt.Errorf("engine: read snapshot %q: %w", s.Name, err)
			}
			rec, err := br.bytes()
			if err != nil {
				return fmt.Errorf("engine: read snapshot %q ordinal %d: %w", s.Name, ord, err)
			}
			ts.records[int(ord)] = rec
		}
		types[s.Name] = ts
	}
	e.types = types
	return nil
}

// ApplyDelta applies a forward or reverse delta in place.
func (e *ReadEngine) ApplyDelta(r io.Reader) error {
	br := newBodyReader(r)
	typeCount, err := br.uvarint()
	if err != nil {
		return fmt.Errorf("engine: apply delta: %w", err)
	}
	for i := uint64(0); i < typeCount; i++ {
		name, err := br.str()
		if err != nil {
			return fmt.Errorf("engine: apply delta: %w", err)
		}
		flags, err := br.byte()
		if err != nil {
			return fmt.Errorf("engine: apply delta %q: %w", name, err)
		}
		if flags&deltaFlagDropped != 0 {
			delete(e.types, name)
			continue
		}
		fields, err := br.fields()
		if err != nil {
			return fmt.Errorf("engine: apply delta %q: %w", name, err)
		}
		ts, ok := e.types[name]
		if !ok {
			ts = &readTypeState{
				schema:     Schema{Name: name, Fields: fields},
				shardCount: 1,
				records:    make(map[int][]byte),
			}
			e.types[name] = ts
		}
		removedCount, err := br.uvarint()
		if err != nil {
			return fmt.Errorf("engine: apply delta %q: %w", name, err)
		}
		for j := uint64(0); j < removedCount; j++ {
			ord, err := br.uvarint()
			if err != nil {
				return fmt.Errorf("engine: apply delta %q: %w", name, err)
			}
			delete(ts.records, int(ord))
		}
		addedCount, err := br.uvarint()
		if err != nil {
			return fmt.Errorf("engine: apply delta %q: %w", name, err)
		}
		for j := uint64(0); j < addedCount; j++ {
			ord, err := br.uvarint()
			if err != nil {
				return fmt.Errorf("engine: apply delta %q: %w", name, err)
			}
			rec, err := br.bytes()
			if err != nil {
				return fmt.Errorf("engine: apply delta %q ordinal %d: %w", name, ord, err)
			}
			ts.records[int(ord)] = rec
		}
	}
	return nil
}

// Checksum computes a content checksum over the given schema subset.
// Type names absent from this engine are skipped, so callers can pass
// the intersection of two engines' schema sets and compare like with
// like even when schema sets differ between versions.
func (e *ReadEngine) Checksum(schemaNames []string) uint64 {
	names := append([]string(nil), schemaNames...)
	sort.Strings(names)

	var tmp [binary.MaxVarintLen64]byte
	d := xxhash.New()
	for _, name := range names {
		ts, ok := e.types[name]
		if !ok {
			continue
		}
		_, _ = d.WriteString(ts.schema.Name)
		for _, ord := range sortedOrdinals(ts.records) {
			_, _ = d.Write(tmp[:binary.PutUvarint(tmp[:], uint64(ord))])
			_, _ = d.Write(ts.records[ord])
		}
	}
	return d.Sum64()
}

// SchemaNames returns the materialized type names, sorted.
func (e *ReadEngine) SchemaNames() []string {
	return sortedKeys(e.types)
}

// Schemas returns the materialized schemas sorted by type name.
func (e *ReadEngine) Schemas() []Schema {
	out := make([]Schema, 0, len(e.types))
	for _, name := range sortedKeys(e.types) {
		out = append(out, e.types[name].schema.clone())
	}
	return out
}

// Copy deep-copies the engine. The integrity checker round-trips deltas
// through copies so the live engines stay untouched.
func (e *ReadEngine) Copy() *ReadEngine {
	out := NewReadEngine()
	for name, ts := range e.types {
		out.types[name] = ts.copy()
	}
	return out
}

// RecordCount returns the number of records for a type.
func (e *ReadEngine) RecordCount(typeName string) int {
	ts, ok := e.types[typeName]
	if !ok {
		return 0
	}
	return len(ts.records)
}

// Ordinals returns the populated ordinals of a type, sorted.
func (e *ReadEngine) Ordinals(typeName string) []int {
	ts, ok := e.types[typeName]
	if !ok {
		return nil
	}
	return sortedOrdinals(ts.records)
}

// RecordBytes returns the encoded record at an ordinal without copying.
// Callers must not mutate the returned slice.
func (e *ReadEngine) RecordBytes(typeName string, ordinal int) ([]byte, bool) {
	ts, ok := e.types[typeName]
	if !ok {
		return nil, false
	}
	rec, ok := ts.records[ordinal]
	return rec, ok
}

// Record decodes the record at an ordinal into field values.
func (e *ReadEngine) Record(typeName string, ordinal int) (Values, error) {
	ts, ok := e.types[typeName]
	if !ok {
		return nil, fmt.Errorf("engine: unknown type %q", typeName)
	}
	rec, ok := ts.records[ordinal]
	if !ok {
		return nil, fmt.Errorf("engine: type %q has no record at ordinal %d", typeName, ordinal)
	}
	return decodeRecord(ts.schema, rec)
}
