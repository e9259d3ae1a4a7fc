package ogg

// StreamState is the header collection state of a logical stream.
type StreamState int

const (
	StateAwaitingFirstPage StreamState = iota
	StateCollectingHeaders
	StateSteady
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateAwaitingFirstPage:
		return "awaiting_first_page"
	case StateCollectingHeaders:
		return "collecting_headers"
	case StateSteady:
		return "steady"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PageRef locates a page inside the physical stream.
type PageRef struct {
	Offset int64
	Size   int
	Header PageHeader
	// Skipped marks a range the reader could not decode as a page and
	// jumped over. Header is not meaningful then.
	Skipped bool
}

// Trailing holds media data that shares a page with the end of the header
// packets.
type Trailing struct {
	Packets [][]byte
	// Continued is set when the last fragment continues on the next page.
	Continued bool
	Granule   uint64
	EOS       bool
}

// Stream is a logical bitstream found by Scan.
type Stream struct {
	Serial  uint32
	Kind    Kind
	State   StreamState
	Headers [][]byte

	// HeaderPages lists the pages of this stream that carry header data.
	HeaderPages []PageRef

	// InvariantStart is the offset of the first byte following the page on
	// which the last header packet ends. Everything from there on is never
	// modified when rewriting this stream's headers.
	InvariantStart int64
	Trailing       *Trailing

	FirstSequence uint32
	LastSequence  uint32
	Pages         int
	LastGranule   uint64
	EOS           bool

	// Err is the fatal error which stopped header collection.
	Err error

	expectHeaders int
	pending       []byte
	pendingOpen   bool
}

func newStream(serial uint32) *Stream {
	return &Stream{
		Serial:      serial,
		State:       StateAwaitingFirstPage,
		LastGranule: GranuleNone,
	}
}

// Identification returns the identification header packet, if collected.
func (s *Stream) Identification() []byte {
	if len(s.Headers) == 0 {
		return nil
	}
	return s.Headers[0]
}

// Comment returns the comment header packet, if collected.
func (s *Stream) Comment() []byte {
	if len(s.Headers) < 2 {
		return nil
	}
	return s.Headers[1]
}

// Complete reports whether all header packets were collected.
func (s *Stream) Complete() bool {
	return s.State == StateSteady
}

// Info decodes the identification header.
func (s *Stream) Info() Info {
	if s.Kind == KindUnknown || len(s.Headers) == 0 {
		return Info{Kind: s.Kind}
	}
	return s.Kind.info(s.Headers[0])
}

func (s *Stream) collectingHeaders() bool {
	return s.State == StateAwaitingFirstPage || s.State == StateCollectingHeaders
}

func (s *Stream) fail(err error) {
	s.State = StateFailed
	s.Err = err
	s.pending = nil
	s.pendingOpen = false
}

func (s *Stream) failAt(off int64, err error) {
	s.fail(&PageError{Offset: off, Serial: s.Serial, Err: err})
}

// push feeds the next page of this stream. A returned error is a media
// phase problem; header phase problems fail the stream instead.
func (s *Stream) push(p *Page, ref PageRef, kinds []Kind) error {
	if s.State == StateFailed {
		return nil
	}

	if s.State == StateAwaitingFirstPage {
		if !p.IsBOS() {
			s.failAt(ref.Offset, inconsistency("first page is not flagged as beginning of stream"))
			return nil
		}
		s.FirstSequence = p.Header.Sequence
		s.State = StateCollectingHeaders
	} else if p.Header.Sequence != s.LastSequence+1 {
		err := inconsistency("page sequence %d follows %d", p.Header.Sequence, s.LastSequence)
		if s.State != StateSteady {
			s.failAt(ref.Offset, err)
			return nil
		}
		s.track(p)
		s.pendingOpen = p.lastOpen()
		return err
	}
	s.track(p)

	if s.State == StateSteady {
		var err error
		if p.IsContinued() != s.pendingOpen {
			err = inconsistency("continued flag %t does not match previous page", p.IsContinued())
		}
		if len(p.Header.Segments) > 0 {
			s.pendingOpen = p.lastOpen()
		}
		return err
	}

	if p.IsContinued() != s.pendingOpen {
		if s.pendingOpen {
			s.failAt(ref.Offset, inconsistency("header packet interrupted by a fresh page"))
		} else {
			s.failAt(ref.Offset, inconsistency("continued page without a pending packet"))
		}
		return nil
	}

	s.HeaderPages = append(s.HeaderPages, ref)

	open := p.lastOpen()
	for i, frag := range p.Packets {
		s.pending = append(s.pending, frag...)
		if i == len(p.Packets)-1 && open {
			s.pendingOpen = true
			return nil
		}

		pkt := s.pending
		s.pending = nil
		s.pendingOpen = false

		done, err := s.addHeader(pkt, kinds)
		if err != nil {
			s.failAt(ref.Offset, err)
			return nil
		}
		if !done {
			continue
		}

		s.State = StateSteady
		s.InvariantStart = ref.Offset + int64(ref.Size)
		if rest := p.Packets[i+1:]; len(rest) > 0 {
			s.Trailing = &Trailing{
				Packets:   rest,
				Continued: open,
				Granule:   p.Header.GranulePosition,
				EOS:       p.IsEOS(),
			}
			s.pendingOpen = open
		}
		return nil
	}

	return nil
}

func (s *Stream) track(p *Page) {
	s.Pages++
	s.LastSequence = p.Header.Sequence
	if p.Header.GranulePosition != GranuleNone {
		s.LastGranule = p.Header.GranulePosition
	}
	if p.IsEOS() {
		s.EOS = true
	}
}

// addHeader records a complete header packet and reports whether it was
// the last one.
func (s *Stream) addHeader(pkt []byte, kinds []Kind) (bool, error) {
	if len(s.Headers) == 0 {
		s.Kind = detectKind(kinds, pkt)
		if s.Kind == KindUnknown {
			return false, ErrUnsupportedStream
		}
		s.expectHeaders = s.Kind.headerCount(pkt)
		s.Headers = append(s.Headers, pkt)
		return s.expectHeaders == 1, nil
	}

	if s.expectHeaders == 0 && len(pkt) > 0 && pkt[0] == 0xff {
		return false, inconsistency("audio frame before the last metadata block")
	}

	s.Headers = append(s.Headers, pkt)
	if s.expectHeaders == 0 {
		return s.Kind.isLastHeader(pkt), nil
	}
	return len(s.Headers) == s.expectHeaders, nil
}

func (p *Page) lastOpen() bool {
	_, open := Unlace(p.Header.Segments)
	return open
}
