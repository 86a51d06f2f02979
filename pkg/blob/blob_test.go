package blob

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/version"
)

func init() {
	_ = log.Setup("error", true, io.Discard)
}

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Header{Kind: KindDelta, Codec: CodecSnappy, From: 1001, To: 1002}
	require.NoError(t, WriteHeader(&buf, in))

	out, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHeaderRejectsGarbage(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte("definitely not a blob header")))
	assert.Error(t, err)

	_, err = ReadHeader(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)
}

func TestFilesystemStagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stager, err := NewFilesystemStager(dir, nil)
	require.NoError(t, err)

	b, err := stager.OpenSnapshot(1001)
	require.NoError(t, err)
	assert.Equal(t, KindSnapshot, b.Kind())
	assert.Equal(t, version.None, b.FromVersion())
	assert.Equal(t, version.Version(1001), b.ToVersion())

	body := []byte("snapshot body bytes")
	_, err = b.Writer().Write(body)
	require.NoError(t, err)
	require.NoError(t, b.Finish())
	assert.Greater(t, b.Size(), int64(0))

	// The sealed blob lands under its final name; no temp files remain.
	_, err = os.Stat(filepath.Join(dir, "snapshot-1001.blob"))
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(dir, ".staging-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	rc, err := b.Open()
	require.NoError(t, err)
	defer rc.Close()
	h, r, err := NewBodyReader(rc)
	require.NoError(t, err)
	assert.Equal(t, KindSnapshot, h.Kind)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFileBlobCleanupIdempotent(t *testing.T) {
	dir := t.TempDir()
	stager, err := NewFilesystemStager(dir, nil)
	require.NoError(t, err)

	b, err := stager.OpenDelta(1001, 1002)
	require.NoError(t, err)
	_, err = b.Writer().Write([]byte("delta"))
	require.NoError(t, err)
	require.NoError(t, b.Finish())

	require.NoError(t, b.Cleanup())
	require.NoError(t, b.Cleanup(), "cleanup is idempotent")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = b.Open()
	assert.Error(t, err, "cleaned blobs cannot be reopened")
}

func TestFileBlobCleanupBeforeFinish(t *testing.T) {
	dir := t.TempDir()
	stager, err := NewFilesystemStager(dir, nil)
	require.NoError(t, err)

	b, err := stager.OpenSnapshot(1001)
	require.NoError(t, err)
	_, err = b.Writer().Write([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, b.Cleanup())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "aborted staging leaves nothing behind")
}

func TestSnappyCompressedBody(t *testing.T) {
	dir := t.TempDir()
	stager, err := NewFilesystemStager(dir, SnappyCompressor{})
	require.NoError(t, err)

	b, err := stager.OpenSnapshot(2000)
	require.NoError(t, err)
	body := bytes.Repeat([]byte("abcd"), 4096)
	_, err = b.Writer().Write(body)
	require.NoError(t, err)
	require.NoError(t, b.Finish())
	assert.Less(t, b.Size(), int64(len(body)), "repetitive body compresses")

	rc, err := b.Open()
	require.NoError(t, err)
	defer rc.Close()
	h, r, err := NewBodyReader(rc)
	require.NoError(t, err)
	assert.Equal(t, CodecSnappy, h.Codec)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func stageBlob(t *testing.T, stager *FilesystemStager, kind Kind, from, to version.Version, body string) Blob {
	t.Helper()
	var (
		b   Blob
		err error
	)
	switch kind {
	case KindSnapshot:
		b, err = stager.OpenSnapshot(to)
	case KindDelta:
		b, err = stager.OpenDelta(from, to)
	default:
		b, err = stager.OpenReverseDelta(from, to)
	}
	require.NoError(t, err)
	_, err = b.Writer().Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, b.Finish())
	return b
}

func TestBoltStorePublishAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	stager, err := NewFilesystemStager(dir, nil)
	require.NoError(t, err)
	store, err := NewBoltStore(filepath.Join(dir, "blobs.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Publish(stageBlob(t, stager, KindSnapshot, version.None, 10, "snap-10")))
	require.NoError(t, store.Publish(stageBlob(t, stager, KindSnapshot, version.None, 20, "snap-20")))
	require.NoError(t, store.Publish(stageBlob(t, stager, KindDelta, 10, 20, "delta-10-20")))
	require.NoError(t, store.Publish(stageBlob(t, stager, KindReverseDelta, 20, 10, "rdelta-20-10")))

	// Exact hit.
	b, err := store.RetrieveSnapshot(20)
	require.NoError(t, err)
	assert.Equal(t, version.Version(20), b.ToVersion())

	// Nearest at or below.
	b, err = store.RetrieveSnapshot(15)
	require.NoError(t, err)
	assert.Equal(t, version.Version(10), b.ToVersion())

	b, err = store.RetrieveSnapshot(999)
	require.NoError(t, err)
	assert.Equal(t, version.Version(20), b.ToVersion())

	_, err = store.RetrieveSnapshot(5)
	assert.ErrorIs(t, err, ErrNotFound)

	b, err = store.RetrieveDelta(10)
	require.NoError(t, err)
	assert.Equal(t, version.Version(20), b.ToVersion())
	rc, err := b.Open()
	require.NoError(t, err)
	defer rc.Close()
	_, body, err := NewBodyReader(rc)
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "delta-10-20", string(got))

	_, err = store.RetrieveDelta(20)
	assert.ErrorIs(t, err, ErrNotFound)

	rb, err := store.RetrieveReverseDelta(20)
	require.NoError(t, err)
	assert.Equal(t, version.Version(10), rb.ToVersion())

	snaps, err := store.SnapshotVersions()
	require.NoError(t, err)
	assert.Equal(t, []version.Version{10, 20}, snaps)
	deltas, err := store.DeltaVersions()
	require.NoError(t, err)
	assert.Equal(t, []version.Version{10}, deltas)
}

func TestBoltStoreAnnouncement(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	defer store.Close()

	v, err := store.AnnouncedVersion()
	require.NoError(t, err)
	assert.True(t, v.IsNone())

	require.NoError(t, store.Announce(1001))
	require.NoError(t, store.Announce(1002))

	v, err = store.AnnouncedVersion()
	require.NoError(t, err)
	assert.Equal(t, version.Version(1002), v)
}
