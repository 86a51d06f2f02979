package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Body layout, little-endian, length-prefixed throughout.
//
// Snapshot:
//	uvarint typeCount
//	per type, sorted by name:
//	  string name, schema, uvarint shardCount, uvarint recordCount,
//	  per record sorted by ordinal: uvarint ordinal, uvarint len, bytes
//
// Delta (same codec forward and reverse):
//	uvarint typeCount
//	per type, sorted by name:
//	  string name, byte flags
//	  if not dropped: schema, uvarint removedCount + ordinals,
//	  uvarint addedCount + (ordinal, len, bytes) per record
//
// Types whose record sets are identical on both sides are omitted from
// deltas entirely.

const deltaFlagDropped = 1

// bodyWriter wraps a writer with a sticky error so encoders read as
// straight-line code.
type bodyWriter struct {
	w   *bufio.Writer
	tmp [binary.MaxVarintLen64]byte
	err error
}

func newBodyWriter(w io.Writer) *bodyWriter {
	return &bodyWriter{w: bufio.NewWriter(w)}
}

func (bw *bodyWriter) uvarint(n uint64) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(bw.tmp[:binary.PutUvarint(bw.tmp[:], n)])
}

func (bw *bodyWriter) bytes(b []byte) {
	if bw.err != nil {
		return
	}
	bw.uvarint(uint64(len(b)))
	if bw.err == nil {
		_, bw.err = bw.w.Write(b)
	}
}

func (bw *bodyWriter) str(s string) {
	bw.bytes([]byte(s))
}

func (bw *bodyWriter) byte(b byte) {
	if bw.err != nil {
		return
	}
	bw.err = bw.w.WriteByte(b)
}

func (bw *bodyWriter) schema(s Schema) {
	bw.str(s.Name)
	bw.fields(s.Fields)
}

func (bw *bodyWriter) fields(fields []Field) {
	bw.uvarint(uint64(len(fields)))
	for _, f := range fields {
		bw.str(f.Name)
		bw.byte(byte(f.Type))
	}
}

func (bw *bodyWriter) flush() error {
	if bw.err != nil {
		return bw.err
	}
	return bw.w.Flush()
}

type bodyReader struct {
	r *bufio.Reader
}

func newBodyReader(r io.Reader) *bodyReader {
	return &bodyReader{r: bufio.NewReader(r)}
}

func (br *bodyReader) uvarint() (uint64, error) {
	return binary.ReadUvarint(br.r)
}

func (br *bodyReader) bytes() ([]byte, error) {
	n, err := br.uvarint()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (br *bodyReader) str() (string, error) {
	b, err := br.bytes()
	return string(b), err
}

func (br *bodyReader) byte() (byte, error) {
	return br.r.ReadByte()
}

func (br *bodyReader) schema() (Schema, error) {
	name, err := br.str()
	if err != nil {
		return Schema{}, err
	}
	fields, err := br.fields()
	if err != nil {
		return Schema{}, err
	}
	s := Schema{Name: name, Fields: fields}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

func (br *bodyReader) fields() ([]Field, error) {
	n, err := br.uvarint()
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, n)
	for i := uint64(0); i < n; i++ {
		fname, err := br.str()
		if err != nil {
			return nil, err
		}
		ftype, err := br.byte()
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: fname, Type: FieldType(ftype)})
	}
	return fields, nil
}

func writeSnapshotBody(w io.Writer, states map[string]*writeTypeState, targetShardSize int64) error {
	bw := newBodyWriter(w)
	names := sortedKeys(states)
	bw.uvarint(uint64(len(names)))
	for _, name := range names {
		ts := states[name]
		bw.schema(ts.schema)
		bw.uvarint(uint64(shardCount(ts, targetShardSize)))
		bw.uvarint(uint64(len(ts.records)))
		for _, ord := range sortedOrdinals(ts.records) {
			bw.uvarint(uint64(ord))
			bw.bytes(ts.records[ord])
		}
	}
	if err := bw.flush(); err != nil {
		return fmt.Errorf("engine: write snapshot: %w", err)
	}
	return nil
}

// typeDiff is one type's section of a delta body.
type typeDiff struct {
	schema  Schema
	dropped bool
	removed []int
	added   map[int][]byte
}

func diffTypeStates(from, to map[string]*writeTypeState) map[string]typeDiff {
	diffs := make(map[string]typeDiff)
	for name, toTS := range to {
		fromTS, ok := from[name]
		if !ok {
			if len(toTS.records) == 0 {
				continue
			}
			added := make(map[int][]byte, len(toTS.records))
			for ord, rec := range toTS.records {
				added[ord] = rec
			}
			diffs[name] = typeDiff{schema: toTS.schema, added: added}
			continue
		}
		if fromTS.equal(toTS) {
			continue
		}
		d := typeDiff{schema: toTS.schema, added: make(map[int][]byte)}
		for ord, rec := range fromTS.records {
			if toRec, ok := toTS.records[ord]; !ok || !bytes.Equal(rec, toRec) {
				d.removed = append(d.removed, ord)
			}
		}
		for ord, rec := range toTS.records {
			if fromRec, ok := fromTS.records[ord]; !ok || !bytes.Equal(rec, fromRec) {
				d.added[ord] = rec
			}
		}
		diffs[name] = d
	}
	for name, fromTS := range from {
		if _, ok := to[name]; !ok && len(fromTS.records) > 0 {
			diffs[name] = typeDiff{schema: fromTS.schema, dropped: true}
		}
	}
	return diffs
}

func writeDeltaBody(w io.Writer, from, to map[string]*writeTypeState) error {
	bw := newBodyWriter(w)
	diffs := diffTypeStates(from, to)
	names := sortedKeys(diffs)
	bw.uvarint(uint64(len(names)))
	for _, name := range names {
		d := diffs[name]
		bw.str(name)
		if d.dropped {
			bw.byte(deltaFlagDropped)
			continue
		}
		bw.byte(0)
		bw.fields(d.schema.Fields)
		removed := append([]int(nil), d.removed...)
		sort.Ints(removed)
		bw.uvarint(uint64(len(removed)))
		for _, ord := range removed {
			bw.uvarint(uint64(ord))
		}
		bw.uvarint(uint64(len(d.added)))
		for _, ord := range sortedOrdinals(d.added) {
			bw.uvarint(uint64(ord))
			bw.bytes(d.added[ord])
		}
	}
	if err := bw.flush(); err != nil {
		return fmt.Errorf("engine: write delta: %w", err)
	}
	return nil
}
