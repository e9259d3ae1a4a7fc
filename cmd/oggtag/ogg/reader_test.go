package ogg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanInvariantStart(t *testing.T) {
	file, pages := opusFile(t, 0x1234)
	offsets := syncOffsets(file)
	require.Len(t, offsets, len(pages))

	l := scanBytes(t, file, ScanOptions{})
	require.Len(t, l.Streams, 1)

	s, err := l.Primary()
	require.NoError(t, err)
	require.Equal(t, KindOpus, s.Kind)
	require.Equal(t, StateSteady, s.State)
	require.Len(t, s.Headers, 2)
	require.Equal(t, opusHead(), s.Identification())
	require.Len(t, s.HeaderPages, 3)
	require.Nil(t, s.Trailing)

	// Three header pages: media starts at the fourth page.
	require.Equal(t, offsets[3], s.InvariantStart)
	// Header scans never read media pages.
	require.Equal(t, offsets[3], l.End)

	info := s.Info()
	require.Equal(t, uint32(48000), info.SampleRate)
	require.Equal(t, 2, info.Channels)
}

func TestScanZeroGranuleMediaPage(t *testing.T) {
	pages := buildPages(t, 7, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{opusHead()}},
		pageSpec{fragments: [][]byte{opusTags("v", "TITLE=zero")}},
		pageSpec{granule: 0, fragments: [][]byte{media(60, 0x10), media(60, 0x11)}},
		pageSpec{flags: FlagEOS, granule: 960, fragments: [][]byte{media(60, 0x12)}},
	)
	file := join(pages...)
	offsets := syncOffsets(file)
	require.Len(t, offsets, 4)

	// The first media page carries granule 0, exactly like a header page.
	p, _, err := ParsePage(file[offsets[2]:])
	require.NoError(t, err)
	require.Equal(t, uint64(0), p.Header.GranulePosition)

	l := scanBytes(t, file, ScanOptions{})
	s, err := l.Primary()
	require.NoError(t, err)
	require.Equal(t, offsets[2], s.InvariantStart)
	require.Len(t, s.HeaderPages, 2)
	require.Nil(t, s.Trailing)

	full := scanBytes(t, file, ScanOptions{Mode: ScanFull})
	require.Empty(t, full.Warnings)
	require.Equal(t, offsets[2], full.Streams[0].InvariantStart)

	var out bytes.Buffer
	comment := opusTags("v", "TITLE=rewritten")
	res, err := Rewrite(&out, bytes.NewReader(file), int64(len(file)), l, 7, comment, RewriteOptions{PreservePageCount: true})
	require.NoError(t, err)
	require.Equal(t, join(pages[2:]...), out.Bytes()[res.OutputInvariantStart:])
}

func TestScanTrailingMedia(t *testing.T) {
	pages := buildPages(t, 5, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{opusHead()}},
		pageSpec{granule: 960, open: true, fragments: [][]byte{opusTags("v", "TITLE=t"), media(20, 1), media(255, 2)}},
		pageSpec{granule: 1920, fragments: [][]byte{media(10, 2)}},
	)
	file := join(pages...)
	offsets := syncOffsets(file)

	l := scanBytes(t, file, ScanOptions{})
	s, err := l.Primary()
	require.NoError(t, err)
	require.Equal(t, offsets[2], s.InvariantStart)
	require.NotNil(t, s.Trailing)
	require.Equal(t, [][]byte{media(20, 1), media(255, 2)}, s.Trailing.Packets)
	require.True(t, s.Trailing.Continued)
	require.Equal(t, uint64(960), s.Trailing.Granule)
}

func TestScanKinds(t *testing.T) {
	th := theoraHeaders()

	tcs := []struct {
		name     string
		pages    []pageSpec
		kind     Kind
		headers  int
		infoRate uint32
	}{
		{
			name: "vorbis",
			pages: []pageSpec{
				{flags: FlagBOS, fragments: [][]byte{vorbisID()}},
				{open: true, granule: GranuleNone, fragments: [][]byte{vorbisComment("v", "TITLE=x"), vorbisSetup(600)[:510]}},
				{fragments: [][]byte{vorbisSetup(600)[510:]}},
				{granule: 4096, fragments: [][]byte{media(30, 1)}},
			},
			kind:     KindVorbis,
			headers:  3,
			infoRate: 44100,
		},
		{
			name: "flac with header count",
			pages: []pageSpec{
				{flags: FlagBOS, fragments: [][]byte{flacID(2)}},
				{fragments: [][]byte{flacComment(false, "v"), {0x81, 0, 0, 4, 0, 0, 0, 0}}},
				{granule: 4096, fragments: [][]byte{{0xff, 0xf8, 1, 2}}},
			},
			kind:     KindFLAC,
			headers:  3,
			infoRate: 44100,
		},
		{
			name: "flac with open header count",
			pages: []pageSpec{
				{flags: FlagBOS, fragments: [][]byte{flacID(0)}},
				{fragments: [][]byte{flacComment(false, "v")}},
				{fragments: [][]byte{{0x81, 0, 0, 2, 0, 0}}},
				{granule: 4096, fragments: [][]byte{{0xff, 0xf8, 1, 2}}},
			},
			kind:     KindFLAC,
			headers:  3,
			infoRate: 44100,
		},
		{
			name: "speex with extra headers",
			pages: []pageSpec{
				{flags: FlagBOS, fragments: [][]byte{speexHeader(1)}},
				{fragments: [][]byte{commentBody("v", "TITLE=s")}},
				{fragments: [][]byte{media(12, 7)}},
				{granule: 320, fragments: [][]byte{media(40, 1)}},
			},
			kind:     KindSpeex,
			headers:  3,
			infoRate: 16000,
		},
		{
			name: "theora",
			pages: []pageSpec{
				{flags: FlagBOS, fragments: [][]byte{th[0]}},
				{fragments: [][]byte{th[1], th[2]}},
				{granule: 1, fragments: [][]byte{media(40, 1)}},
			},
			kind:    KindTheora,
			headers: 3,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			pages := buildPages(t, 77, 0, tc.pages...)
			file := join(pages...)
			offsets := syncOffsets(file)

			l := scanBytes(t, file, ScanOptions{})
			s, err := l.Primary()
			require.NoError(t, err)
			require.Equal(t, tc.kind, s.Kind)
			require.Len(t, s.Headers, tc.headers)
			require.Equal(t, offsets[len(offsets)-1], s.InvariantStart)
			require.Equal(t, tc.infoRate, s.Info().SampleRate)

			_, _, err = s.Kind.CommentBody(s.Comment())
			require.NoError(t, err)
		})
	}
}

func TestScanKindTable(t *testing.T) {
	file, _ := opusFile(t, 1)

	l := scanBytes(t, file, ScanOptions{Kinds: []Kind{KindVorbis}})
	_, err := l.Primary()
	require.ErrorIs(t, err, ErrUnsupportedStream)
}

func TestScanUnsupportedStream(t *testing.T) {
	pages := buildPages(t, 3, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{[]byte("NotACodecHeader")}},
		pageSpec{granule: 10, fragments: [][]byte{media(10, 1)}},
	)

	l := scanBytes(t, join(pages...), ScanOptions{})
	require.Len(t, l.Streams, 1)
	require.Equal(t, StateFailed, l.Streams[0].State)

	_, err := l.Primary()
	require.ErrorIs(t, err, ErrUnsupportedStream)
}

func TestScanMultiplexedResilience(t *testing.T) {
	good := buildPages(t, 1, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{opusHead()}},
		pageSpec{fragments: [][]byte{opusTags("good")}},
		pageSpec{granule: 960, fragments: [][]byte{media(50, 1)}},
	)
	broken := buildPages(t, 2, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{vorbisID()}},
	)
	// Sequence gap on the broken stream's comment page.
	gap := buildPages(t, 2, 5, pageSpec{fragments: [][]byte{vorbisComment("broken")}})

	file := join(good[0], broken[0], good[1], gap[0], good[2])
	l := scanBytes(t, file, ScanOptions{})
	require.Len(t, l.Streams, 2)

	b := l.Stream(2)
	require.Equal(t, StateFailed, b.State)
	require.ErrorIs(t, b.Err, ErrStreamInconsistency)
	var perr *PageError
	require.ErrorAs(t, b.Err, &perr)
	require.Equal(t, uint32(2), perr.Serial)

	s, err := l.Primary()
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.Serial)
	require.Equal(t, KindOpus, s.Kind)
}

func TestScanHeaderPageCorruption(t *testing.T) {
	file, _ := opusFile(t, 9)
	offsets := syncOffsets(file)
	// Flip a byte inside the second comment page.
	file[offsets[2]+pageHeaderLen+5] ^= 0xff

	l := scanBytes(t, file, ScanOptions{})
	s := l.Stream(9)
	require.Equal(t, StateFailed, s.State)
	require.ErrorIs(t, s.Err, ErrChecksumMismatch)

	_, err := l.Primary()
	require.ErrorIs(t, err, ErrChecksumMismatch)

	l = scanBytes(t, file, ScanOptions{SkipChecksum: true})
	s, err = l.Primary()
	require.NoError(t, err)
	require.Equal(t, offsets[3], s.InvariantStart)
}

func TestScanLostHeaderPage(t *testing.T) {
	file, _ := opusFile(t, 9)
	offsets := syncOffsets(file)
	// Destroy the capture pattern of the first comment page.
	file[offsets[1]] = 'X'

	l := scanBytes(t, file, ScanOptions{})
	s := l.Stream(9)
	require.Equal(t, StateFailed, s.State)
	require.ErrorIs(t, s.Err, ErrStreamInconsistency)
	require.NotEmpty(t, l.Warnings)
	require.ErrorIs(t, l.Warnings[0].Err, ErrInvalidSync)
}

func TestScanFullMediaCorruption(t *testing.T) {
	file, _ := opusFile(t, 9)
	offsets := syncOffsets(file)
	file[offsets[4]+pageHeaderLen+3] ^= 0x01

	l := scanBytes(t, file, ScanOptions{Mode: ScanFull})
	s, err := l.Primary()
	require.NoError(t, err)
	require.Equal(t, offsets[3], s.InvariantStart)
	require.Len(t, l.Warnings, 1)
	require.ErrorIs(t, l.Warnings[0].Err, ErrChecksumMismatch)
	require.Equal(t, offsets[4], l.Warnings[0].Offset)
	require.Equal(t, offsets[4], l.End)
	require.Equal(t, 4, s.Pages)
}

func TestScanFull(t *testing.T) {
	file, pages := opusFile(t, 9)

	l := scanBytes(t, file, ScanOptions{Mode: ScanFull})
	s, err := l.Primary()
	require.NoError(t, err)
	require.Empty(t, l.Warnings)
	require.Equal(t, int64(len(file)), l.End)
	require.Equal(t, len(pages), s.Pages)
	require.Equal(t, uint64(1920), s.LastGranule)
	require.True(t, s.EOS)
}

func TestScanTruncatedFile(t *testing.T) {
	file, _ := opusFile(t, 9)
	offsets := syncOffsets(file)

	t.Run("in media", func(t *testing.T) {
		l := scanBytes(t, file[:len(file)-10], ScanOptions{Mode: ScanFull})
		_, err := l.Primary()
		require.NoError(t, err)
		require.Len(t, l.Warnings, 1)
		require.ErrorIs(t, l.Warnings[0].Err, ErrSegmentOverflow)
	})

	t.Run("in headers", func(t *testing.T) {
		l := scanBytes(t, file[:offsets[2]+10], ScanOptions{})
		_, err := l.Primary()
		require.ErrorIs(t, err, ErrStreamInconsistency)
	})
}

func TestScanLeadingJunk(t *testing.T) {
	file, _ := opusFile(t, 9)

	junk := media(100, 0x20)
	l := scanBytes(t, append(junk, file...), ScanOptions{})
	require.Equal(t, int64(100), l.Prefix)
	s, err := l.Primary()
	require.NoError(t, err)
	require.Equal(t, int64(100)+syncOffsets(file)[3], s.InvariantStart)

	data := append(media(200, 0x20), file...)
	_, err = Scan(bytes.NewReader(data), int64(len(data)), ScanOptions{MaxLeadingJunk: 100})
	require.ErrorIs(t, err, ErrInvalidSync)

	_, err = Scan(bytes.NewReader(nil), 0, ScanOptions{})
	require.ErrorIs(t, err, ErrInvalidSync)
}

func TestScanChained(t *testing.T) {
	first, _ := opusFile(t, 1)
	second, _ := opusFile(t, 2)
	file := join(first, second)

	l := scanBytes(t, file, ScanOptions{Mode: ScanFull})
	require.True(t, l.Chained)
	require.Len(t, l.Streams, 1)
	require.Equal(t, int64(len(first)), l.End)
}

func TestScanDuplicateBOS(t *testing.T) {
	pages := buildPages(t, 4, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{opusHead()}},
	)
	again := buildPages(t, 4, 1,
		pageSpec{flags: FlagBOS, fragments: [][]byte{opusHead()}},
	)

	l := scanBytes(t, join(pages[0], again[0]), ScanOptions{})
	require.Len(t, l.Streams, 1)
	require.ErrorIs(t, l.Streams[0].Err, ErrStreamInconsistency)
}
