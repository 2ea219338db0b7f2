// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import "errors"

var (
	// ErrNotFound is returned when a segment id is not known to this WAL.
	ErrNotFound = errors.New("wal: segment not found")
	// ErrSegmentOpen is returned by delete when asked to remove the
	// currently open (appendable) segment.
	ErrSegmentOpen = errors.New("wal: segment is still open")
	// ErrSegmentDeleted is returned by delete when the segment was already
	// removed.
	ErrSegmentDeleted = errors.New("wal: segment already deleted")
	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("wal: closed")
	// ErrWalFull is returned by append when writing the record would
	// exceed the open segment's configured size limit. The caller (or the
	// persist pipeline's rotation task) is expected to rotate and retry.
	ErrWalFull = errors.New("wal: segment full, rotate required")
	// ErrCorrupt is returned for header/magic mismatches encountered while
	// opening a directory or segment, never for a torn tail record (which
	// ends the read stream cleanly instead, per spec).
	ErrCorrupt = errors.New("wal: corrupt segment")
	// ErrEncode is returned by append when a record cannot be framed, e.g.
	// because its encoded length overflows the u32 length field.
	ErrEncode = errors.New("wal: cannot encode record")
)
