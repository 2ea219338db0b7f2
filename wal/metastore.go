// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import (
	"encoding/binary"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/chronocore/ingestcore/ids"
)

var segmentsBucket = []byte("segments")

// metaStore is a small bbolt-backed cache of closed segment summaries, so
// that Open does not have to stream every segment on disk just to answer
// ClosedSegments() with sizes and max sequence numbers. The directory
// listing of "<id>.dat" files remains the source of truth (spec.md §4.2);
// a missing or stale cache entry is recomputed by scanning the segment.
type metaStore struct {
	db *bolt.DB
}

func openMetaStore(dir string) (*metaStore, error) {
	db, err := bolt.Open(filepath.Join(dir, "wal-meta.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(segmentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &metaStore{db: db}, nil
}

func encodeClosedSegment(cs ClosedSegment) []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(cs.ID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(cs.SizeBytes))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(cs.MaxSequence))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(cs.CreatedAt.UnixNano()))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(cs.SealedAt.UnixNano()))
	return buf
}

func decodeClosedSegment(buf []byte) (ClosedSegment, bool) {
	if len(buf) != 40 {
		return ClosedSegment{}, false
	}
	return ClosedSegment{
		ID:          ids.SegmentId(binary.LittleEndian.Uint64(buf[0:8])),
		SizeBytes:   int64(binary.LittleEndian.Uint64(buf[8:16])),
		MaxSequence: ids.SequenceNumber(binary.LittleEndian.Uint64(buf[16:24])),
		CreatedAt:   time.Unix(0, int64(binary.LittleEndian.Uint64(buf[24:32]))),
		SealedAt:    time.Unix(0, int64(binary.LittleEndian.Uint64(buf[32:40]))),
	}, true
}

func segmentKey(id ids.SegmentId) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func (m *metaStore) put(cs ClosedSegment) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(segmentsBucket).Put(segmentKey(cs.ID), encodeClosedSegment(cs))
	})
}

func (m *metaStore) get(id ids.SegmentId) (ClosedSegment, bool) {
	var cs ClosedSegment
	var ok bool
	_ = m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(segmentsBucket).Get(segmentKey(id))
		if v == nil {
			return nil
		}
		cs, ok = decodeClosedSegment(v)
		return nil
	})
	return cs, ok
}

func (m *metaStore) delete(id ids.SegmentId) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(segmentsBucket).Delete(segmentKey(id))
	})
}

func (m *metaStore) close() error {
	return m.db.Close()
}
