package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Values is the populator-facing representation of one record: a map of
// field name to field value. Int fields accept int, int8 to int64, uint,
// and uint8 to uint32 (uint64 and uintptr are rejected); float fields
// accept float32/float64.
type Values map[string]any

// encodeRecord canonicalizes values against the schema into the columnar
// byte form that records are deduplicated, stored, and checksummed by.
// Fields encode in schema order, so value-equal records always produce
// identical bytes.
func encodeRecord(s Schema, vals Values) ([]byte, error) {
	if len(vals) != len(s.Fields) {
		for name := range vals {
			if !s.hasField(name) {
				return nil, fmt.Errorf("engine: record for %q has unknown field %q", s.Name, name)
			}
		}
	}

	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for _, f := range s.Fields {
		raw, ok := vals[f.Name]
		if !ok {
			return nil, fmt.Errorf("engine: record for %q missing field %q", s.Name, f.Name)
		}
		switch f.Type {
		case FieldInt:
			n, ok := toInt64(raw)
			if !ok {
				return nil, fieldTypeError(s, f, raw)
			}
			buf.Write(tmp[:binary.PutVarint(tmp[:], n)])
		case FieldFloat:
			n, ok := toFloat64(raw)
			if !ok {
				return nil, fieldTypeError(s, f, raw)
			}
			binary.LittleEndian.PutUint64(tmp[:8], math.Float64bits(n))
			buf.Write(tmp[:8])
		case FieldBool:
			b, ok := raw.(bool)
			if !ok {
				return nil, fieldTypeError(s, f, raw)
			}
			if b {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case FieldString:
			v, ok := raw.(string)
			if !ok {
				return nil, fieldTypeError(s, f, raw)
			}
			buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(len(v)))])
			buf.WriteString(v)
		case FieldBytes:
			v, ok := raw.([]byte)
			if !ok {
				return nil, fieldTypeError(s, f, raw)
			}
			buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(len(v)))])
			buf.Write(v)
		}
	}
	return buf.Bytes(), nil
}

// decodeRecord is the inverse of encodeRecord. It is used by validators
// and tooling; hot read paths work on the encoded bytes directly.
func decodeRecord(s Schema, data []byte) (Values, error) {
	vals := make(Values, len(s.Fields))
	r := bytes.NewReader(data)
	for _, f := range s.Fields {
		switch f.Type {
		case FieldInt:
			n, err := binary.ReadVarint(r)
			if err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			vals[f.Name] = n
		case FieldFloat:
			var b [8]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			vals[f.Name] = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
		case FieldBool:
			b, err := r.ReadByte()
			if err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			vals[f.Name] = b != 0
		case FieldString:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			if n > uint64(r.Len()) {
				return nil, recordDecodeError(s, f, io.ErrUnexpectedEOF)
			}
			b := make([]byte, n)
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			vals[f.Name] = string(b)
		case FieldBytes:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			if n > uint64(r.Len()) {
				return nil, recordDecodeError(s, f, io.ErrUnexpectedEOF)
			}
			b := make([]byte, n)
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, recordDecodeError(s, f, err)
			}
			vals[f.Name] = b
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("engine: record for %q has %d trailing bytes", s.Name, r.Len())
	}
	return vals, nil
}

func (s Schema) hasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func fieldTypeError(s Schema, f Field, raw any) error {
	return fmt.Errorf("engine: record for %q field %q: cannot use %T as %s", s.Name, f.Name, raw, f.Type)
}

func recordDecodeError(s Schema, f Field, err error) error {
	return fmt.Errorf("engine: decode %q field %q: %w", s.Name, f.Name, err)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
