package blob

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/burrow/pkg/version"
)

var (
	// Bucket names
	bucketSnapshots     = []byte("snapshots")
	bucketDeltas        = []byte("deltas")
	bucketReverseDeltas = []byte("reversedeltas")
	bucketAnnouncement  = []byte("announcement")

	announcementKey = []byte("current")
)

// BoltStore is a bbolt-backed blob store. It persists published blobs
// (snapshots keyed by to-version, deltas keyed by from-version) and the
// announced version, serving as Publisher, Retriever, and Announcer for
// single-host deployments.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the store at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSnapshots,
			bucketDeltas,
			bucketReverseDeltas,
			bucketAnnouncement,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("blob: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Publish copies a staged blob's raw bytes into the store.
func (s *BoltStore) Publish(b Blob) error {
	rc, err := b.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("blob: read staged %s: %w", b.Kind(), err)
	}

	var bucket []byte
	var key version.Version
	switch b.Kind() {
	case KindSnapshot:
		bucket, key = bucketSnapshots, b.ToVersion()
	case KindDelta:
		bucket, key = bucketDeltas, b.FromVersion()
	case KindReverseDelta:
		bucket, key = bucketReverseDeltas, b.FromVersion()
	default:
		return fmt.Errorf("blob: publish unknown kind %d", b.Kind())
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(versionKey(key), data)
	})
}

// RetrieveSnapshot returns the snapshot with the greatest to-version not
// exceeding desired.
func (s *BoltStore) RetrieveSnapshot(desired version.Version) (Blob, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		k, v := c.Seek(versionKey(desired))
		if k == nil || !bytes.Equal(k, versionKey(desired)) {
			// Seek landed past desired (or at the end); step back to the
			// nearest preceding snapshot.
			k, v = c.Prev()
		}
		if k == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newStoredBlob(data)
}

// RetrieveDelta returns the forward delta departing the given version.
func (s *BoltStore) RetrieveDelta(from version.Version) (Blob, error) {
	return s.retrieve(bucketDeltas, from)
}

// RetrieveReverseDelta returns the reverse delta departing the given
// version.
func (s *BoltStore) RetrieveReverseDelta(from version.Version) (Blob, error) {
	return s.retrieve(bucketReverseDeltas, from)
}

func (s *BoltStore) retrieve(bucket []byte, key version.Version) (Blob, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(versionKey(key))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newStoredBlob(data)
}

// Announce records the announced version.
func (s *BoltStore) Announce(v version.Version) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnnouncement).Put(announcementKey, versionKey(v))
	})
}

// AnnouncedVersion returns the announced version, or version.None when
// nothing was announced yet.
func (s *BoltStore) AnnouncedVersion() (version.Version, error) {
	v := version.None
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAnnouncement).Get(announcementKey)
		if data != nil {
			v = keyVersion(data)
		}
		return nil
	})
	return v, err
}

// SnapshotVersions lists stored snapshot to-versions in ascending order.
func (s *BoltStore) SnapshotVersions() ([]version.Version, error) {
	return s.listVersions(bucketSnapshots)
}

// DeltaVersions lists stored delta from-versions in ascending order.
func (s *BoltStore) DeltaVersions() ([]version.Version, error) {
	return s.listVersions(bucketDeltas)
}

func (s *BoltStore) listVersions(bucket []byte) ([]version.Version, error) {
	var out []version.Version
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			out = append(out, keyVersion(k))
			return nil
		})
	})
	return out, err
}

// versionKey encodes a version so bolt's byte order matches version
// order, including the negative sentinel.
func versionKey(v version.Version) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v)^(1<<63))
	return buf[:]
}

func keyVersion(k []byte) version.Version {
	return version.Version(binary.BigEndian.Uint64(k) ^ (1 << 63))
}

// storedBlob is a published blob read back from the store.
type storedBlob struct {
	header Header
	data   []byte
}

func newStoredBlob(data []byte) (*storedBlob, error) {
	h, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &storedBlob{header: h, data: data}, nil
}

func (b *storedBlob) Kind() Kind                   { return b.header.Kind }
func (b *storedBlob) FromVersion() version.Version { return b.header.From }
func (b *storedBlob) ToVersion() version.Version   { return b.header.To }
func (b *storedBlob) Size() int64                  { return int64(len(b.data)) }

func (b *storedBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Writer is unavailable on retrieved blobs.
func (b *storedBlob) Writer() io.Writer { return nil }

func (b *storedBlob) Finish() error { return nil }

func (b *storedBlob) Cleanup() error { return nil }
