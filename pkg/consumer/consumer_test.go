package consumer

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/version"
)

func init() {
	_ = log.Setup("error", true, io.Discard)
}

func movieSchema() engine.Schema {
	return engine.Schema{
		Name: "movie",
		Fields: []engine.Field{
			{Name: "id", Type: engine.FieldInt},
			{Name: "title", Type: engine.FieldString},
		},
	}
}

// buildChain publishes snapshot v1, then deltas 1->2->3 with a snapshot
// only at v1, mimicking a producer on a sparse snapshot cadence.
func buildChain(t *testing.T) *blob.BoltStore {
	t.Helper()
	dir := t.TempDir()
	stager, err := blob.NewFilesystemStager(filepath.Join(dir, "staging"), nil)
	require.NoError(t, err)
	store, err := blob.NewBoltStore(filepath.Join(dir, "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	we := engine.NewWriteEngine()
	require.NoError(t, we.AddSchema(movieSchema()))

	stage := func(open func() (blob.Blob, error), write func(io.Writer) error) {
		t.Helper()
		b, err := open()
		require.NoError(t, err)
		require.NoError(t, write(b.Writer()))
		require.NoError(t, b.Finish())
		require.NoError(t, store.Publish(b))
		require.NoError(t, b.Cleanup())
	}

	// v1: one movie, snapshot published.
	we.PrepareForNextCycle()
	_, err = we.Add("movie", engine.Values{"id": int64(1), "title": "one"})
	require.NoError(t, err)
	stage(func() (blob.Blob, error) { return stager.OpenSnapshot(1) }, we.WriteSnapshot)
	we.CommitCycle()

	// v2 and v3: delta-only.
	we.PrepareForNextCycle()
	_, err = we.Add("movie", engine.Values{"id": int64(2), "title": "two"})
	require.NoError(t, err)
	stage(func() (blob.Blob, error) { return stager.OpenDelta(1, 2) }, we.WriteDelta)
	we.CommitCycle()

	we.PrepareForNextCycle()
	_, err = we.Add("movie", engine.Values{"id": int64(3), "title": "three"})
	require.NoError(t, err)
	stage(func() (blob.Blob, error) { return stager.OpenDelta(2, 3) }, we.WriteDelta)
	we.CommitCycle()

	return store
}

func TestRefreshColdStartWalksDeltas(t *testing.T) {
	store := buildChain(t)
	c := New(store)

	require.NoError(t, c.RefreshTo(3))
	assert.Equal(t, version.Version(3), c.CurrentVersion())
	assert.Equal(t, 3, c.ReadEngine().RecordCount("movie"))

	vals, err := c.ReadEngine().Record("movie", 2)
	require.NoError(t, err)
	assert.Equal(t, "three", vals["title"])
}

func TestRefreshStopsAtChainEnd(t *testing.T) {
	store := buildChain(t)
	c := New(store)

	require.NoError(t, c.RefreshTo(99))
	assert.Equal(t, version.Version(3), c.CurrentVersion(), "chain ends before the target")
}

func TestRefreshIncrementalThenRewind(t *testing.T) {
	store := buildChain(t)
	c := New(store)

	require.NoError(t, c.RefreshTo(2))
	assert.Equal(t, version.Version(2), c.CurrentVersion())

	// Forward from the live engine, no snapshot reload.
	require.NoError(t, c.RefreshTo(3))
	assert.Equal(t, version.Version(3), c.CurrentVersion())

	// Rewinding reloads from the nearest snapshot at or below.
	require.NoError(t, c.RefreshTo(1))
	assert.Equal(t, version.Version(1), c.CurrentVersion())
	assert.Equal(t, 1, c.ReadEngine().RecordCount("movie"))
}

func TestRefreshToSameVersionIsNoOp(t *testing.T) {
	store := buildChain(t)
	c := New(store)
	require.NoError(t, c.RefreshTo(3))
	eng := c.ReadEngine()

	require.NoError(t, c.RefreshTo(3))
	assert.Same(t, eng, c.ReadEngine())
}

// flakyRetriever fails each request a fixed number of times before
// delegating.
type flakyRetriever struct {
	inner blob.Retriever

	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRetriever) fail() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		return errors.New("transient store hiccup")
	}
	return nil
}

func (r *flakyRetriever) RetrieveSnapshot(desired version.Version) (blob.Blob, error) {
	if err := r.fail(); err != nil {
		return nil, err
	}
	return r.inner.RetrieveSnapshot(desired)
}

func (r *flakyRetriever) RetrieveDelta(from version.Version) (blob.Blob, error) {
	if err := r.fail(); err != nil {
		return nil, err
	}
	return r.inner.RetrieveDelta(from)
}

func TestRefreshRetriesTransientFailures(t *testing.T) {
	store := buildChain(t)
	flaky := &flakyRetriever{inner: store, failures: 2}
	c := New(flaky, WithRetries(3))

	require.NoError(t, c.RefreshTo(1))
	assert.Equal(t, version.Version(1), c.CurrentVersion())
}

func TestRefreshGivesUpAfterRetryBudget(t *testing.T) {
	store := buildChain(t)
	flaky := &flakyRetriever{inner: store, failures: 100}
	c := New(flaky, WithRetries(2))

	err := c.RefreshTo(1)
	assert.Error(t, err)
	assert.Equal(t, version.None, c.CurrentVersion())
}

func TestRefreshBelowOldestSnapshotFails(t *testing.T) {
	store := buildChain(t)
	c := New(store)

	err := c.RefreshTo(0)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}
