package ogg

import (
	"fmt"
	"io"
)

type RewriteOptions struct {
	// PreservePageCount spreads the new header packets over as many pages
	// as the original ones had, when they have enough segments, so that the
	// sequence numbers of the following pages stay continuous.
	PreservePageCount bool
}

type RewriteResult struct {
	Serial uint32
	// OriginalPages and Pages count the header pages of the rewritten
	// stream before and after the rewrite, identification page included.
	OriginalPages int
	Pages         int
	// SequenceShift is Pages - OriginalPages. When it is not zero the
	// sequence numbers of the untouched media pages no longer follow the
	// header pages contiguously.
	SequenceShift int
	// InvariantStart is the offset in the source from which bytes were
	// copied verbatim, and OutputInvariantStart where they begin in the
	// output.
	InvariantStart       int64
	OutputInvariantStart int64
	Written              int64
}

type pagePlan struct {
	fragments [][]byte
	continued bool
	complete  bool
	granule   uint64
	eos       bool
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(b []byte) (int, error) {
	n, err := cw.w.Write(b)
	cw.n += int64(n)
	return n, err
}

// Rewrite writes to w a copy of the physical stream read from r in which
// the comment header packet of the logical stream with the given serial is
// replaced. comment is the complete, codec framed, comment packet. Only
// the header pages of that stream are re-encoded: the bytes before the
// first page, the pages of other streams, ranges skipped while resyncing
// and everything from the stream's invariant start on are copied unchanged.
func Rewrite(w io.Writer, r io.ReaderAt, size int64, l *Layout, serial uint32, comment []byte, opts RewriteOptions) (*RewriteResult, error) {
	s := l.Stream(serial)
	if s == nil {
		return nil, fmt.Errorf("no logical stream with serial %08x", serial)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if !s.Complete() || len(s.Headers) < 2 || len(s.HeaderPages) == 0 {
		return nil, inconsistency("header packets of serial %08x are incomplete", serial)
	}
	if s.InvariantStart > size {
		return nil, fmt.Errorf("invariant start %d is past the end of a %d bytes stream", s.InvariantStart, size)
	}

	idPage := s.HeaderPages[0]
	reuseID := idPageReusable(idPage, s.Headers[0])

	var plans []pagePlan
	if !reuseID {
		plans = paginate(s.Headers[:1], 0, 0)
	}

	target := len(s.HeaderPages) - 1
	if !opts.PreservePageCount {
		target = 0
	}
	// Room is kept on the last header page for the media that shared it.
	var reserve int
	if t := s.Trailing; t != nil {
		if n := segmentCount(t.Packets, !t.Continued); n < maxSegments {
			reserve = n
		}
	}
	packets := append([][]byte{comment}, s.Headers[2:]...)
	plans = append(plans, paginate(packets, target, reserve)...)

	if s.Trailing != nil {
		plans = placeTrailing(plans, s.Trailing)
	} else {
		plans[len(plans)-1].eos = s.HeaderPages[len(s.HeaderPages)-1].Header.Flags&FlagEOS != 0
	}

	pages, err := renderPlans(s, plans, !reuseID)
	if err != nil {
		return nil, err
	}

	res := &RewriteResult{
		Serial:         serial,
		OriginalPages:  len(s.HeaderPages),
		InvariantStart: s.InvariantStart,
	}
	res.Pages = len(pages)
	if reuseID {
		res.Pages++
	}
	res.SequenceShift = res.Pages - res.OriginalPages

	cw := &countingWriter{w: w}
	if err := copySection(cw, r, 0, l.Prefix); err != nil {
		return nil, err
	}

	emitted := false
	for _, ref := range l.Region {
		if ref.Offset >= s.InvariantStart {
			break
		}
		if ref.Skipped || ref.Header.Serial != serial || (reuseID && ref.Offset == idPage.Offset) {
			if err := copySection(cw, r, ref.Offset, int64(ref.Size)); err != nil {
				return nil, err
			}
			continue
		}
		if emitted {
			continue
		}
		for _, page := range pages {
			if _, err := cw.Write(page); err != nil {
				return nil, fmt.Errorf("failed to write header page: %w", err)
			}
		}
		emitted = true
	}

	res.OutputInvariantStart = cw.n
	if err := copySection(cw, r, s.InvariantStart, size-s.InvariantStart); err != nil {
		return nil, err
	}
	res.Written = cw.n

	return res, nil
}

func renderPlans(s *Stream, plans []pagePlan, bos bool) ([][]byte, error) {
	seq := s.HeaderPages[0].Header.Sequence
	if !bos {
		seq = s.HeaderPages[1].Header.Sequence
	}

	pages := make([][]byte, 0, len(plans))
	for i, plan := range plans {
		h := PageHeader{
			GranulePosition:    plan.granule,
			Serial:             s.Serial,
			Sequence:           seq,
			LastPacketComplete: plan.complete,
		}
		if plan.continued {
			h.Flags |= FlagContinued
		}
		if i == 0 && bos {
			h.Flags |= FlagBOS
		}
		if plan.eos {
			h.Flags |= FlagEOS
		}

		b, err := NewPage(h, plan.fragments...).Render()
		if err != nil {
			return nil, fmt.Errorf("failed to render header page %d: %w", seq, err)
		}
		pages = append(pages, b)
		seq++
	}

	return pages, nil
}

func segmentCount(fragments [][]byte, lastComplete bool) int {
	var n int
	for i, frag := range fragments {
		n += len(Lace(len(frag), i < len(fragments)-1 || lastComplete))
	}
	return n
}

// paginate lays packets out over pages of at most 255 segments, keeping
// reserve segments free on the last page. When target exceeds the minimum
// number of pages, and there are enough segments, the segments are spread
// evenly over target pages instead.
func paginate(packets [][]byte, target, reserve int) []pagePlan {
	laces := make([][]byte, len(packets))
	var total int
	for i, pkt := range packets {
		laces[i] = Lace(len(pkt), true)
		total += len(laces[i])
	}

	room := maxSegments - reserve
	n := 1
	if total > room {
		n += (total - room + maxSegments - 1) / maxSegments
	}
	if target > n {
		n = min(target, total)
	}

	plans := make([]pagePlan, 0, n)
	var pi, si, bo int
	for _, quota := range quotas(total, n, room) {
		plan := pagePlan{continued: si > 0, granule: GranuleNone}
		for quota > 0 {
			segs := laces[pi]
			take := min(quota, len(segs)-si)
			var size int
			for _, seg := range segs[si : si+take] {
				size += int(seg)
			}
			plan.fragments = append(plan.fragments, packets[pi][bo:bo+size])
			si += take
			bo += size
			quota -= take

			plan.complete = si == len(segs)
			if plan.complete {
				plan.granule = 0
				pi++
				si, bo = 0, 0
			}
		}
		plans = append(plans, plan)
	}

	return plans
}

// quotas splits total segments over n pages as evenly as possible, with at
// most room segments on the last one. n must leave enough capacity.
func quotas(total, n, room int) []int {
	q := make([]int, n)
	q[n-1] = min(total/n, room)
	if n == 1 {
		return q
	}
	rest := total - q[n-1]
	base, extra := rest/(n-1), rest%(n-1)
	for i := 0; i < n-1; i++ {
		q[i] = base
		if i < extra {
			q[i]++
		}
	}
	return q
}

// placeTrailing puts the media fragments that followed the last header
// packet back after it, on the same page when its segment table has room.
// A page only takes the original granule when a media packet ends on it.
func placeTrailing(plans []pagePlan, t *Trailing) []pagePlan {
	complete := !t.Continued
	endsPacket := complete || len(t.Packets) > 1

	last := &plans[len(plans)-1]
	if segmentCount(last.fragments, true)+segmentCount(t.Packets, complete) <= maxSegments {
		last.fragments = append(last.fragments, t.Packets...)
		last.complete = complete
		if endsPacket {
			last.granule = t.Granule
		}
		last.eos = t.EOS
		return plans
	}

	own := pagePlan{
		fragments: t.Packets,
		complete:  complete,
		granule:   GranuleNone,
		eos:       t.EOS,
	}
	if endsPacket {
		own.granule = t.Granule
	}
	return append(plans, own)
}

func idPageReusable(ref PageRef, id []byte) bool {
	lengths, continued := Unlace(ref.Header.Segments)
	return !continued && len(lengths) == 1 && lengths[0] == len(id)
}

func copySection(w io.Writer, r io.ReaderAt, off, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.Copy(w, io.NewSectionReader(r, off, n)); err != nil {
		return fmt.Errorf("failed to copy %d bytes at offset %d: %w", n, off, err)
	}
	return nil
}
