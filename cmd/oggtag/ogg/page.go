package ogg

import (
	"encoding/binary"
	"fmt"
)

// Page is a single Ogg page. Packets holds the packet fragments carried by
// the page in order; the first one may continue a packet from a previous
// page and the last one may continue on the next page.
type Page struct {
	Header  PageHeader
	Packets [][]byte

	raw []byte
}

// NewPage builds a page from a header template and the fragments it
// carries. The segment table and checksum are computed by Render.
func NewPage(header PageHeader, packets ...[]byte) *Page {
	return &Page{
		Header:  header,
		Packets: packets,
	}
}

// ParsePage decodes and validates the page at the start of b, returning the
// page and the number of bytes it occupies.
func ParsePage(b []byte) (*Page, int, error) {
	return parsePage(b, true)
}

func parsePage(b []byte, verify bool) (*Page, int, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, 0, err
	}

	hs, ds := h.Size(), h.DataSize()
	if len(b)-hs < ds {
		return nil, 0, fmt.Errorf("%w: need %d body bytes, have %d", ErrSegmentOverflow, ds, len(b)-hs)
	}
	raw := b[:hs+ds]

	if verify {
		if sum := Checksum(raw); sum != h.Checksum {
			return nil, 0, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksumMismatch, h.Checksum, sum)
		}
	}

	p := &Page{
		Header:  *h,
		Packets: splitFragments(raw[hs:], h.Segments),
		raw:     raw,
	}

	return p, len(raw), nil
}

func splitFragments(data, segments []byte) [][]byte {
	lengths, _ := Unlace(segments)
	fragments := make([][]byte, 0, len(lengths))
	var off int
	for _, n := range lengths {
		fragments = append(fragments, data[off:off+n])
		off += n
	}
	return fragments
}

// Render encodes the page, computing its segment table and checksum. The
// header fields Segments and Checksum are updated to match the output.
func (p *Page) Render() ([]byte, error) {
	var segments []byte
	var size int
	for i, pkt := range p.Packets {
		complete := i < len(p.Packets)-1 || p.Header.LastPacketComplete
		segments = append(segments, Lace(len(pkt), complete)...)
		size += len(pkt)
	}
	if len(segments) > maxSegments {
		return nil, fmt.Errorf("%w: %d segments", ErrSegmentOverflow, len(segments))
	}

	p.Header.Segments = segments
	p.Header.Checksum = 0

	buf := make([]byte, 0, pageHeaderLen+len(segments)+size)
	buf = p.Header.AppendTo(buf)
	for _, pkt := range p.Packets {
		buf = append(buf, pkt...)
	}

	p.Header.Checksum = Checksum(buf)
	binary.LittleEndian.PutUint32(buf[checksumOffset:], p.Header.Checksum)
	p.raw = buf

	return buf, nil
}

// Validate checks sync, version, segment table bounds and checksum of the
// page as it would appear on disk.
func (p *Page) Validate() error {
	raw := p.raw
	if raw == nil {
		var err error
		if raw, err = p.Render(); err != nil {
			return err
		}
	}
	_, _, err := parsePage(raw, true)
	return err
}

// Bytes returns the encoded page, or nil if it was neither parsed nor
// rendered.
func (p *Page) Bytes() []byte {
	return p.raw
}

func (p *Page) IsBOS() bool {
	return p.Header.Flags&FlagBOS != 0
}

func (p *Page) IsEOS() bool {
	return p.Header.Flags&FlagEOS != 0
}

func (p *Page) IsContinued() bool {
	return p.Header.Flags&FlagContinued != 0
}

// EndsPacket reports whether at least one packet ends on this page.
func (p *Page) EndsPacket() bool {
	lengths, continued := Unlace(p.Header.Segments)
	return len(lengths) > 1 || (len(lengths) == 1 && !continued)
}
