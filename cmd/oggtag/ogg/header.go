package ogg

import (
	"encoding/binary"
	"fmt"
)

// PageFlags is the header type byte of a page.
type PageFlags uint8

const (
	FlagContinued PageFlags = 0x01
	FlagBOS       PageFlags = 0x02
	FlagEOS       PageFlags = 0x04
)

// GranuleNone marks a page on which no packet ends.
const GranuleNone = ^uint64(0)

// PageHeader is the fixed part of a page plus its segment table.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| capture_pattern: Magic number for page start "OggS"           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| version       | header_type   | granule_position              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               +
//	|                                                               |
//	+                               +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                               | bitstream_serial_number       |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               +
//	|                               | page_sequence_number          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               +
//	|                               | CRC_checksum                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               +
//	|                               | page_segments | segment_table |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type PageHeader struct {
	Version         uint8
	Flags           PageFlags
	GranulePosition uint64
	Serial          uint32
	Sequence        uint32
	Checksum        uint32
	Segments        []byte

	// LastPacketComplete tells whether the last packet on the page ends
	// here. It is derived from the segment table when parsing and drives
	// the lacing of the last packet when rendering.
	LastPacketComplete bool
}

// ParseHeader decodes the page header at the start of b. b must hold at
// least the fixed header and the whole segment table.
func ParseHeader(b []byte) (*PageHeader, error) {
	if len(b) < len(pageHeaderSignature) || string(b[:len(pageHeaderSignature)]) != pageHeaderSignature {
		return nil, ErrInvalidSync
	}
	if len(b) < pageHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedHeader, len(b), pageHeaderLen)
	}
	if b[4] != 0 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHeader, b[4])
	}

	n := int(b[26])
	if len(b) < pageHeaderLen+n {
		return nil, fmt.Errorf("%w: segment table truncated", ErrMalformedHeader)
	}

	h := &PageHeader{
		Version:         b[4],
		Flags:           PageFlags(b[5]),
		GranulePosition: binary.LittleEndian.Uint64(b[6:14]),
		Serial:          binary.LittleEndian.Uint32(b[14:18]),
		Sequence:        binary.LittleEndian.Uint32(b[18:22]),
		Checksum:        binary.LittleEndian.Uint32(b[22:26]),
		Segments:        append([]byte(nil), b[pageHeaderLen:pageHeaderLen+n]...),
	}
	h.LastPacketComplete = n == 0 || h.Segments[n-1] < maxSegmentSize

	return h, nil
}

// Size returns the encoded size of the header including the segment table.
func (h *PageHeader) Size() int {
	return pageHeaderLen + len(h.Segments)
}

// DataSize returns the number of body bytes described by the segment table.
func (h *PageHeader) DataSize() int {
	var n int
	for _, s := range h.Segments {
		n += int(s)
	}
	return n
}

// AppendTo appends the encoded header to dst.
func (h *PageHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, pageHeaderSignature...)
	dst = append(dst, h.Version, byte(h.Flags))
	dst = binary.LittleEndian.AppendUint64(dst, h.GranulePosition)
	dst = binary.LittleEndian.AppendUint32(dst, h.Serial)
	dst = binary.LittleEndian.AppendUint32(dst, h.Sequence)
	dst = binary.LittleEndian.AppendUint32(dst, h.Checksum)
	dst = append(dst, byte(len(h.Segments)))
	return append(dst, h.Segments...)
}
