package ogg

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func commentBody(vendor string, fields ...string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(vendor)))
	b = append(b, vendor...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(fields)))
	for _, f := range fields {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(f)))
		b = append(b, f...)
	}
	return b
}

func opusHead() []byte {
	b := []byte(opusIDSignature)
	b = append(b, 1, 2)
	b = binary.LittleEndian.AppendUint16(b, 312)
	b = binary.LittleEndian.AppendUint32(b, 48000)
	b = binary.LittleEndian.AppendUint16(b, 0)
	return append(b, 0)
}

func opusTags(vendor string, fields ...string) []byte {
	return append([]byte(opusCommentSignature), commentBody(vendor, fields...)...)
}

func vorbisID() []byte {
	b := []byte(vorbisIDPrefix)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, 2)
	b = binary.LittleEndian.AppendUint32(b, 44100)
	b = append(b, make([]byte, 12)...)
	return append(b, 0xb8, 0x01)
}

func vorbisComment(vendor string, fields ...string) []byte {
	b := append([]byte(vorbisCommentPrefix), commentBody(vendor, fields...)...)
	return append(b, 0x01)
}

func vorbisSetup(n int) []byte {
	return append([]byte("\x05vorbis"), bytes.Repeat([]byte{0x42}, n)...)
}

func flacID(count uint16) []byte {
	b := []byte(flacSignature)
	b = append(b, 1, 0)
	b = binary.BigEndian.AppendUint16(b, count)
	b = append(b, flacNativeSignature...)
	b = append(b, 0x00, 0, 0, 34)
	info := make([]byte, 34)
	info[10], info[11], info[12] = 0x0a, 0xc4, 0x42
	return append(b, info...)
}

func flacComment(last bool, vendor string, fields ...string) []byte {
	body := commentBody(vendor, fields...)
	t := byte(flacCommentBlockType)
	if last {
		t |= flacLastBlockFlag
	}
	n := len(body)
	return append([]byte{t, byte(n >> 16), byte(n >> 8), byte(n)}, body...)
}

func speexHeader(extra uint32) []byte {
	b := make([]byte, speexHeaderLen)
	copy(b, speexSignature)
	binary.LittleEndian.PutUint32(b[36:], 16000)
	binary.LittleEndian.PutUint32(b[48:], 1)
	binary.LittleEndian.PutUint32(b[68:], extra)
	return b
}

func theoraHeaders() [][]byte {
	id := append([]byte(theoraIDPrefix), make([]byte, 35)...)
	comment := append([]byte(theoraCommentPrefix), commentBody("theora vendor", "TITLE=video")...)
	setup := append([]byte("\x82theora"), bytes.Repeat([]byte{0x11}, 300)...)
	return [][]byte{id, comment, setup}
}

func media(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

type pageSpec struct {
	flags     PageFlags
	granule   uint64
	open      bool
	fragments [][]byte
}

// buildPages renders consecutive pages of one logical stream, setting the
// continued flag after every page whose last fragment is open.
func buildPages(t *testing.T, serial, seq uint32, specs ...pageSpec) [][]byte {
	t.Helper()

	var pages [][]byte
	var continued bool
	for _, spec := range specs {
		h := PageHeader{
			Flags:              spec.flags,
			GranulePosition:    spec.granule,
			Serial:             serial,
			Sequence:           seq,
			LastPacketComplete: !spec.open,
		}
		if continued {
			h.Flags |= FlagContinued
		}
		b, err := NewPage(h, spec.fragments...).Render()
		require.NoError(t, err)
		pages = append(pages, b)
		continued = spec.open
		seq++
	}
	return pages
}

func join(pages ...[]byte) []byte {
	return bytes.Join(pages, nil)
}

func syncOffsets(b []byte) []int64 {
	var offsets []int64
	for i := 0; ; {
		j := bytes.Index(b[i:], []byte(pageHeaderSignature))
		if j < 0 {
			return offsets
		}
		offsets = append(offsets, int64(i+j))
		i += j + 1
	}
}

// opusFile builds an Opus stream whose comment packet spans two pages and
// which has two media pages.
func opusFile(t *testing.T, serial uint32) ([]byte, [][]byte) {
	t.Helper()

	tags := opusTags("test vendor", "TITLE=a title", "ARTIST="+string(media(600, 'a')))
	pages := buildPages(t, serial, 0,
		pageSpec{flags: FlagBOS, fragments: [][]byte{opusHead()}},
		pageSpec{granule: GranuleNone, open: true, fragments: [][]byte{tags[:510]}},
		pageSpec{fragments: [][]byte{tags[510:]}},
		pageSpec{granule: 960, fragments: [][]byte{media(100, 1), media(120, 2)}},
		pageSpec{flags: FlagEOS, granule: 1920, fragments: [][]byte{media(80, 3)}},
	)
	return join(pages...), pages
}

func scanBytes(t *testing.T, b []byte, opts ScanOptions) *Layout {
	t.Helper()
	l, err := Scan(bytes.NewReader(b), int64(len(b)), opts)
	require.NoError(t, err)
	return l
}
