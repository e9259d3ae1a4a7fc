package ogg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ScanMode tells Scan how far to read.
type ScanMode int

const (
	// ScanHeaders stops as soon as every stream has collected its headers.
	ScanHeaders ScanMode = iota
	// ScanFull reads every page up to the end of the physical stream.
	ScanFull
)

const DefaultMaxLeadingJunk = 64 << 10

const syncChunkSize = 64 << 10

type ScanOptions struct {
	Mode  ScanMode
	Kinds []Kind
	// SkipChecksum disables page checksum verification.
	SkipChecksum bool
	// MaxLeadingJunk bounds the number of bytes searched for the first page.
	MaxLeadingJunk int64
}

func (o *ScanOptions) SetDefaults() {
	if len(o.Kinds) == 0 {
		o.Kinds = DefaultKinds
	}
	if o.MaxLeadingJunk <= 0 {
		o.MaxLeadingJunk = DefaultMaxLeadingJunk
	}
}

// Layout describes the structure of a physical Ogg stream as found by Scan.
type Layout struct {
	Size int64
	// Prefix is the number of bytes preceding the first page.
	Prefix int64
	// End is the offset at which scanning stopped.
	End     int64
	Streams []*Stream
	// Region lists, in file order, every page read while any stream was
	// still collecting headers, and the ranges skipped while resyncing.
	Region   []PageRef
	Warnings []Warning
	// Chained is set when a new chain link was found after every stream
	// of the first one ended.
	Chained bool

	bosRun bool
	index  map[uint32]*Stream
}

// Stream returns the logical stream with the given serial, or nil.
func (l *Layout) Stream(serial uint32) *Stream {
	return l.index[serial]
}

// Primary returns the first stream, in file order, of a supported kind with
// complete headers. When there is none, it falls back to the first stream
// of a supported kind together with the error that stopped it.
func (l *Layout) Primary() (*Stream, error) {
	var fallback *Stream
	for _, s := range l.Streams {
		if s.Kind == KindUnknown {
			continue
		}
		if s.Err == nil && s.Complete() {
			return s, nil
		}
		if fallback == nil {
			fallback = s
		}
	}
	if fallback != nil {
		return fallback, fallback.Err
	}
	for _, s := range l.Streams {
		if s.Err != nil && !errors.Is(s.Err, ErrUnsupportedStream) {
			return nil, s.Err
		}
	}
	return nil, fmt.Errorf("%w: no recognizable header packet", ErrUnsupportedStream)
}

func (l *Layout) collecting() bool {
	if l.bosRun {
		return true
	}
	for _, s := range l.Streams {
		if s.collectingHeaders() {
			return true
		}
	}
	return false
}

func (l *Layout) allEnded() bool {
	for _, s := range l.Streams {
		if !s.EOS {
			return false
		}
	}
	return len(l.Streams) > 0
}

func (l *Layout) warn(off int64, serial uint32, err error) {
	l.Warnings = append(l.Warnings, Warning{Offset: off, Serial: serial, Err: err})
}

// problem fails s when it is still collecting headers and records a
// warning otherwise.
func (l *Layout) problem(s *Stream, off int64, err error) {
	if s.collectingHeaders() {
		s.fail(&PageError{Offset: off, Serial: s.Serial, Err: err})
		return
	}
	l.warn(off, s.Serial, err)
}

// Scan walks the pages of a physical Ogg stream, demultiplexes its logical
// streams and collects their header packets. Problems confined to one
// logical stream are recorded on that stream; the returned error is only
// set when no page could be found or reading failed.
func Scan(r io.ReaderAt, size int64, opts ScanOptions) (*Layout, error) {
	opts.SetDefaults()

	start, err := nextSync(r, 0, min(size, opts.MaxLeadingJunk+int64(len(pageHeaderSignature))))
	if err != nil {
		return nil, fmt.Errorf("failed to search for first page: %w", err)
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: no page within the first %d bytes", ErrInvalidSync, opts.MaxLeadingJunk)
	}

	l := &Layout{
		Size:   size,
		Prefix: start,
		bosRun: true,
		index:  make(map[uint32]*Stream),
	}

	off := start
	for off < size {
		p, n, err := readPage(r, off, size, !opts.SkipChecksum)
		if err != nil {
			if !isPageError(err) {
				return nil, fmt.Errorf("failed to read page at offset %d: %w", off, err)
			}

			var serial uint32
			attributed := false
			if p != nil {
				serial = p.Header.Serial
				if s := l.index[serial]; s != nil && s.collectingHeaders() {
					s.fail(&PageError{Offset: off, Serial: serial, Err: err})
					attributed = true
				}
			}
			if !attributed {
				l.warn(off, serial, err)
			}
			if !l.collecting() {
				break
			}

			next, err := nextSync(r, off+1, size)
			if err != nil {
				return nil, fmt.Errorf("failed to resync after offset %d: %w", off, err)
			}
			if next < 0 {
				next = size
			}
			l.Region = append(l.Region, PageRef{Offset: off, Size: int(next - off), Skipped: true})
			off = next
			continue
		}

		if l.collecting() {
			l.Region = append(l.Region, PageRef{Offset: off, Size: n, Header: p.Header})
		}

		if !l.dispatch(p, off, n, opts.Kinds) {
			break
		}
		off += int64(n)

		if opts.Mode == ScanHeaders && !l.collecting() {
			break
		}
	}
	l.End = off

	for _, s := range l.Streams {
		if s.State == StateCollectingHeaders {
			s.fail(inconsistency("stream ended after %d header packets", len(s.Headers)))
		}
	}

	return l, nil
}

// dispatch routes a page to its logical stream. It returns false when
// scanning must stop before this page.
func (l *Layout) dispatch(p *Page, off int64, n int, kinds []Kind) bool {
	serial := p.Header.Serial
	s := l.index[serial]
	ref := PageRef{Offset: off, Size: n, Header: p.Header}

	if !p.IsBOS() {
		l.bosRun = false
	}

	switch {
	case p.IsBOS() && s != nil:
		l.problem(s, off, inconsistency("duplicate beginning of stream for serial %08x", serial))
		return true
	case p.IsBOS() && !l.bosRun && l.allEnded():
		l.Chained = true
		return false
	case p.IsBOS():
		if !l.bosRun {
			l.warn(off, serial, inconsistency("beginning of stream after data pages"))
		}
		s = newStream(serial)
		l.index[serial] = s
		l.Streams = append(l.Streams, s)
	case s == nil:
		l.warn(off, serial, inconsistency("page for unknown serial %08x", serial))
		return true
	case s.EOS:
		l.warn(off, serial, inconsistency("page after end of stream"))
	}

	if err := s.push(p, ref, kinds); err != nil {
		l.warn(off, serial, err)
	}
	return true
}

// readPage reads and decodes the page at off. On a checksum mismatch the
// decoded page is returned along with the error so it can be attributed.
func readPage(r io.ReaderAt, off, size int64, verify bool) (*Page, int, error) {
	remain := size - off

	head := make([]byte, min(remain, pageHeaderLen))
	if err := readAt(r, head, off); err != nil {
		return nil, 0, err
	}
	if !bytes.HasPrefix(head, []byte(pageHeaderSignature)) {
		return nil, 0, ErrInvalidSync
	}
	if len(head) < pageHeaderLen {
		return nil, 0, fmt.Errorf("%w: truncated at end of file", ErrMalformedHeader)
	}
	if head[4] != 0 {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrMalformedHeader, head[4])
	}

	hs := pageHeaderLen + int(head[26])
	if int64(hs) > remain {
		return nil, 0, fmt.Errorf("%w: segment table truncated at end of file", ErrMalformedHeader)
	}
	buf := make([]byte, hs)
	copy(buf, head)
	if err := readAt(r, buf[pageHeaderLen:], off+pageHeaderLen); err != nil {
		return nil, 0, err
	}

	h, err := ParseHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	total := hs + h.DataSize()
	if int64(total) > remain {
		return nil, 0, fmt.Errorf("%w: page needs %d bytes, %d left", ErrSegmentOverflow, total, remain)
	}

	raw := make([]byte, total)
	copy(raw, buf)
	if err := readAt(r, raw[hs:], off+int64(hs)); err != nil {
		return nil, 0, err
	}

	p, n, err := parsePage(raw, false)
	if err != nil {
		return nil, 0, err
	}
	if verify {
		if sum := Checksum(raw); sum != p.Header.Checksum {
			return p, n, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksumMismatch, p.Header.Checksum, sum)
		}
	}

	return p, n, nil
}

// nextSync returns the offset of the first capture pattern in [from, size),
// or -1.
func nextSync(r io.ReaderAt, from, size int64) (int64, error) {
	buf := make([]byte, syncChunkSize)
	for from < size {
		n := min(int64(len(buf)), size-from)
		if err := readAt(r, buf[:n], from); err != nil {
			return -1, err
		}
		if i := bytes.Index(buf[:n], []byte(pageHeaderSignature)); i >= 0 {
			return from + int64(i), nil
		}
		if from+n >= size {
			break
		}
		from += n - int64(len(pageHeaderSignature)-1)
	}
	return -1, nil
}

func readAt(r io.ReaderAt, b []byte, off int64) error {
	n, err := r.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
