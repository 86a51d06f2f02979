// Package consumer materializes published dataset versions in memory
// and advances them along the version chain: cold-start from the
// nearest snapshot, then forward deltas to the target. The producer's
// restore procedure uses a transient consumer to rebuild its state from
// a prior version.
package consumer
