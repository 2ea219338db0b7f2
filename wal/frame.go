// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// File format (spec.md §6):
//
//	header: 8-byte magic "IOXWAL\0\0" + u32 version, little-endian
//	record: u32 length | u32 crc32c(payload) | payload[length]
//
// crc32 is computed with the Castagnoli polynomial via the standard
// library's hash/crc32, which is the literal algorithm spec.md names; no
// third-party implementation in the corpus offers anything more suitable
// for this single, narrowly-scoped primitive (see DESIGN.md).
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

const (
	magicLen        = 8
	headerLen       = magicLen + 4
	frameHeaderLen  = 4 + 4
	fileVersion     = uint32(1)
	defaultMaxBytes = 64 * 1024 * 1024
)

var fileMagic = [magicLen]byte{'I', 'O', 'X', 'W', 'A', 'L', 0, 0}

func encodeFileHeader() []byte {
	buf := make([]byte, headerLen)
	copy(buf[:magicLen], fileMagic[:])
	binary.LittleEndian.PutUint32(buf[magicLen:], fileVersion)
	return buf
}

func decodeFileHeader(buf []byte) error {
	if len(buf) < headerLen {
		return ErrCorrupt
	}
	if [magicLen]byte(buf[:magicLen]) != fileMagic {
		return ErrCorrupt
	}
	version := binary.LittleEndian.Uint32(buf[magicLen:headerLen])
	if version != fileVersion {
		return ErrCorrupt
	}
	return nil
}

// encodeFrame returns the on-disk representation of one record: the
// length+crc32c header followed by payload.
func encodeFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.Checksum(payload, crc32cTable))
	copy(frame[frameHeaderLen:], payload)
	return frame
}

func crc32Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, crc32cTable)
}

type frameHeader struct {
	length uint32
	crc    uint32
}

func decodeFrameHeader(buf []byte) frameHeader {
	return frameHeader{
		length: binary.LittleEndian.Uint32(buf[0:4]),
		crc:    binary.LittleEndian.Uint32(buf[4:8]),
	}
}
