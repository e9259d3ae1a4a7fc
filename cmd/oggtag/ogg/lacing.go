package ogg

// Lace returns the segment table entries for a packet, or packet fragment,
// of the given length. A complete packet whose length is a multiple of 255
// gets a terminating zero segment. An incomplete fragment can only be
// expressed when its length is a multiple of 255; otherwise its last
// segment reads as a packet end.
func Lace(length int, complete bool) []byte {
	full := length / maxSegmentSize
	rem := length % maxSegmentSize

	n := full
	if rem > 0 || complete {
		n++
	}

	segments := make([]byte, n)
	for i := 0; i < full; i++ {
		segments[i] = maxSegmentSize
	}
	if rem > 0 {
		segments[full] = byte(rem)
	}

	return segments
}

// Unlace groups segment table entries into packet lengths. continued is
// true when the last packet does not end on this page.
func Unlace(segments []byte) (lengths []int, continued bool) {
	var cur int
	var open bool
	for _, s := range segments {
		cur += int(s)
		open = true
		if s < maxSegmentSize {
			lengths = append(lengths, cur)
			cur = 0
			open = false
		}
	}
	if open {
		lengths = append(lengths, cur)
	}
	return lengths, open
}
