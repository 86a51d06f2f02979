/*
Package engine implements Burrow's columnar state engines: the mutable
WriteEngine a producer populates each cycle, and the immutable ReadEngine
consumers materialize from published blobs.

# Data Model

A dataset is a set of record types, each described by a Schema of typed
fields. Records are value-deduplicated: adding the same field values twice
yields the same ordinal. Ordinals are dense per-type integers, assigned by
the write engine and preserved across versions so that deltas stay small
and consumers can hold ordinal references across refreshes.

# Cycle Contract

The write engine carries the last produced version as its baseline.
PrepareForNextCycle hands the populator a working copy of that baseline;
the delta serializers encode the difference between the two, in both
directions. CommitCycle rolls the baseline forward once a version is
announced, and ResetToLastPrepareForNextCycle discards a failed cycle's
edits.

	we := engine.NewWriteEngine()
	we.AddSchema(engine.Schema{Name: "movie", Fields: []engine.Field{
		{Name: "id", Type: engine.FieldInt},
		{Name: "title", Type: engine.FieldString},
	}})

	we.PrepareForNextCycle()
	we.Add("movie", engine.Values{"id": int64(1), "title": "The Matrix"})

# Checksums

ReadEngine.Checksum hashes record content over a chosen schema subset
with xxhash64. Restricting to the schema intersection of two engines lets
the integrity check compare states whose schema sets differ.
*/
package engine
