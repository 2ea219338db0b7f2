// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import (
	"bufio"
	"io"
	"os"

	"github.com/chronocore/ingestcore/ids"
	"github.com/chronocore/ingestcore/op"
)

const maxEntrySize = 256 * 1024 * 1024

// SegmentReader yields a finite, forward-only stream of op.SequencedOp from
// one closed segment. Records with an invalid CRC or a truncated tail end
// the stream cleanly (Next returns io.EOF), exactly as if the writer had
// crashed immediately after the last good record (spec.md §4.2, §8 S6).
type SegmentReader struct {
	f   *os.File
	br  *bufio.Reader
	err error
}

func openSegmentReader(dir string, id ids.SegmentId) (*SegmentReader, error) {
	f, err := os.Open(segmentPath(dir, id))
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)

	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(br, hdr); err != nil {
		f.Close()
		return nil, ErrCorrupt
	}
	if err := decodeFileHeader(hdr); err != nil {
		f.Close()
		return nil, err
	}
	return &SegmentReader{f: f, br: br}, nil
}

// Close releases the underlying file handle.
func (r *SegmentReader) Close() error {
	return r.f.Close()
}

// Next returns the next op in the segment. It returns io.EOF once the
// segment is exhausted, whether that is a clean end-of-file, a truncated
// trailing record, or a CRC mismatch on the tail. Any other non-nil error
// indicates a genuine I/O failure and should be treated as fatal by the
// caller (spec.md §7 WalReplay).
func (r *SegmentReader) Next() (op.SequencedOp, error) {
	if r.err != nil {
		return op.SequencedOp{}, r.err
	}

	hdrBuf := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r.br, hdrBuf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// Clean EOF (no partial header) or a torn header: both end the
			// stream cleanly.
			return op.SequencedOp{}, io.EOF
		}
		r.err = err
		return op.SequencedOp{}, err
	}
	fh := decodeFrameHeader(hdrBuf)
	if fh.length > maxEntrySize {
		// A bogus length this large cannot be a torn write; but we still
		// treat it as end-of-log rather than propagate a hard error, since
		// we cannot tell corruption from a crash mid-write.
		return op.SequencedOp{}, io.EOF
	}

	payload := make([]byte, fh.length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return op.SequencedOp{}, io.EOF
		}
		r.err = err
		return op.SequencedOp{}, err
	}

	if crc32Checksum(payload) != fh.crc {
		return op.SequencedOp{}, io.EOF
	}

	decoded, err := op.DecodeSequencedOp(payload)
	if err != nil {
		return op.SequencedOp{}, io.EOF
	}
	return decoded, nil
}
