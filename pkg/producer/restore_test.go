package producer

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/version"
)

// buildChain produces versions 1001..1001+n-1 into the env's store.
func buildChain(t *testing.T, env *testEnv, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		_, err := env.producer.RunCycle(func(ws *WriteState) error {
			addMovie(t, ws, id, fmt.Sprintf("movie-%d", id))
			return nil
		})
		require.NoError(t, err)
	}
}

// newRestoredProducer builds a fresh producer over the same store,
// restored to the given version.
func newRestoredProducer(t *testing.T, env *testEnv, desired version.Version, opts ...Option) *Producer {
	t.Helper()
	all := append([]Option{
		WithStagingDir(filepath.Join(t.TempDir(), "staging")),
		WithPublisher(env.store),
		WithAnnouncer(env.store),
		WithSchemas(movieSchema()),
		WithVersionMinter(&stubMinter{next: desired + 1}),
	}, opts...)
	p, err := New(all...)
	require.NoError(t, err)

	st, err := p.Restore(desired, env.store)
	require.NoError(t, err)
	require.True(t, st.Success)
	return p
}

func TestRestoreToAnnouncedVersion(t *testing.T) {
	env := newTestEnv(t)
	buildChain(t, env, 2)
	require.Equal(t, version.Version(1002), env.announced(t))

	p := newRestoredProducer(t, env, 1002)
	assert.Equal(t, version.Version(1002), p.CurrentVersion())
	assert.Equal(t, 2, p.CurrentReadState().Engine().RecordCount("movie"))
}

func TestRestoreThenEmptyPopulatorIsNoDelta(t *testing.T) {
	env := newTestEnv(t)
	buildChain(t, env, 2)

	lis := newRecListener()
	p := newRestoredProducer(t, env, 1002, WithListeners(lis))

	v, err := p.RunCycle(func(ws *WriteState) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, version.Version(1002), v)
	assert.True(t, lis.seen("no-delta"))
	assert.Equal(t, version.Version(1002), env.announced(t))
}

func TestRestoredProducerContinuesDeltaChain(t *testing.T) {
	env := newTestEnv(t)
	buildChain(t, env, 2)

	p := newRestoredProducer(t, env, 1002)
	v, err := p.RunCycle(func(ws *WriteState) error {
		addMovie(t, ws, 3, "movie-3")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, version.Version(1003), v)

	// The new delta departs the restored version, continuous with
	// history.
	d, err := env.store.RetrieveDelta(1002)
	require.NoError(t, err)
	assert.Equal(t, version.Version(1003), d.ToVersion())
}

func TestRestoreMismatchLeavesProducerUntouched(t *testing.T) {
	env := newTestEnv(t)
	buildChain(t, env, 2)

	p, err := New(
		WithStagingDir(filepath.Join(t.TempDir(), "staging")),
		WithPublisher(env.store),
		WithAnnouncer(env.store),
		WithSchemas(movieSchema()),
	)
	require.NoError(t, err)

	// The chain ends at 1002; asking for a later version cannot be
	// satisfied exactly.
	st, err := p.Restore(1010, env.store)
	var merr *RestoreMismatchError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, version.Version(1010), merr.Desired)
	assert.Equal(t, version.Version(1002), merr.Reached)
	assert.False(t, st.Success)
	assert.Equal(t, version.None, p.CurrentVersion(), "holder unchanged")

	// A cycle after the failed restore starts a fresh chain rather than
	// continuing a half-restored one.
	v, cerr := p.RunCycle(func(ws *WriteState) error {
		addMovie(t, ws, 1, "movie-1")
		return nil
	})
	require.NoError(t, cerr)
	assert.False(t, v.IsNone())
}

func TestRestoreNoneIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	st, err := env.producer.Restore(version.None, env.store)
	require.NoError(t, err)
	assert.True(t, st.Success)
	assert.Equal(t, version.None, env.producer.CurrentVersion())
}

func TestRestoredCadenceCountdown(t *testing.T) {
	env := newTestEnv(t)
	buildChain(t, env, 2)

	exec := &queueExecutor{}
	p := newRestoredProducer(t, env, 1002,
		WithNumStatesBetweenSnapshots(2),
		WithSnapshotPublishExecutor(exec),
	)

	produce := func(id int64) {
		t.Helper()
		_, err := p.RunCycle(func(ws *WriteState) error {
			addMovie(t, ws, id, fmt.Sprintf("movie-%d", id))
			return nil
		})
		require.NoError(t, err)
	}

	// Restore arms the countdown with the full interval: 1003 and 1004
	// defer nothing, 1005 fires.
	produce(3)
	produce(4)
	assert.Equal(t, 0, exec.drain())
	produce(5)
	assert.Equal(t, 1, exec.drain())

	b, err := env.store.RetrieveSnapshot(1005)
	require.NoError(t, err)
	assert.Equal(t, version.Version(1005), b.ToVersion())
}
