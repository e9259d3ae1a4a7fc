package tagger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattermost/oggtag/cmd/oggtag/comment"
	"github.com/mattermost/oggtag/cmd/oggtag/config"
	"github.com/mattermost/oggtag/cmd/oggtag/ogg"

	"github.com/dhowden/tag"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/require"
)

func defaultConfig() config.TaggerConfig {
	var cfg config.TaggerConfig
	cfg.SetDefaults()
	return cfg
}

func writeOpusFile(t *testing.T, path string, packets int) {
	t.Helper()

	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < packets; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: bytes.Repeat([]byte{byte(0x20 + i)}, 80),
		}))
	}
	require.NoError(t, w.Close())
}

func commentBody(vendor string, fields ...string) []byte {
	c := comment.New(vendor)
	for _, f := range fields {
		k, v, ok := bytes.Cut([]byte(f), []byte("="))
		if !ok {
			c.Invalid = append(c.Invalid, f)
			continue
		}
		c.Fields = append(c.Fields, comment.Field{Key: string(k), Value: string(v)})
	}
	return c.Marshal()
}

func renderPage(t *testing.T, h ogg.PageHeader, packets ...[]byte) []byte {
	t.Helper()
	h.LastPacketComplete = true
	b, err := ogg.NewPage(h, packets...).Render()
	require.NoError(t, err)
	return b
}

func vorbisFile(t *testing.T, fields ...string) []byte {
	t.Helper()

	id := []byte("\x01vorbis")
	id = binary.LittleEndian.AppendUint32(id, 0)
	id = append(id, 2)
	id = binary.LittleEndian.AppendUint32(id, 44100)
	id = append(id, make([]byte, 12)...)
	id = append(id, 0xb8, 0x01)

	commentPkt := append([]byte("\x03vorbis"), commentBody("Xiph.Org libVorbis", fields...)...)
	commentPkt = append(commentPkt, 0x01)
	setup := append([]byte("\x05vorbis"), bytes.Repeat([]byte{0x42}, 100)...)

	const serial = 0x0badcafe
	return bytes.Join([][]byte{
		renderPage(t, ogg.PageHeader{Flags: ogg.FlagBOS, Serial: serial}, id),
		renderPage(t, ogg.PageHeader{Serial: serial, Sequence: 1}, commentPkt, setup),
		renderPage(t, ogg.PageHeader{Serial: serial, Sequence: 2, GranulePosition: 1024}, bytes.Repeat([]byte{0x01}, 300)),
		renderPage(t, ogg.PageHeader{Serial: serial, Sequence: 3, GranulePosition: 2048, Flags: ogg.FlagEOS}, bytes.Repeat([]byte{0x02}, 200)),
	}, nil)
}

func TestOpusSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.opus")
	writeOpusFile(t, path, 5)
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := Open(path, defaultConfig())
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, ogg.KindOpus, f.Stream.Kind)
	require.Equal(t, "pion\x00", f.Comment.Vendor)
	require.Empty(t, f.Comment.Fields)
	require.NoError(t, f.CommentErr)
	require.Equal(t, uint32(48000), f.Info().SampleRate)
	require.Equal(t, 2, f.Info().Channels)
	originalStart := f.Stream.InvariantStart

	c := f.Tag()
	c.SetTitle("Opus title")
	c.SetArtist("Opus artist")
	c.SetAlbum("Opus album")
	c.SetDescription("Opus comment")
	c.SetGenre("Acid Punk")
	c.SetTrack(6)
	c.SetTrackCount(7)
	c.SetYear(1234)
	require.Empty(t, f.Comment.Fields)

	res, err := f.Save(c)
	require.NoError(t, err)
	require.Zero(t, res.SequenceShift)

	require.Equal(t, comment.Tags{
		Title:       "Opus title",
		Artist:      "Opus artist",
		Album:       "Opus album",
		Genre:       "Acid Punk",
		Description: "Opus comment",
		Year:        1234,
		Track:       6,
		TrackCount:  7,
	}, f.Comment.Tags())
	require.Equal(t, "pion\x00", f.Comment.Vendor)

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original[originalStart:], saved[f.Stream.InvariantStart:])

	r, _, err := oggreader.NewWith(bytes.NewReader(saved))
	require.NoError(t, err)
	pages := 1
	for {
		_, _, err := r.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		pages++
	}
	require.Equal(t, 7, pages)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestVorbisSaveAs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.ogg")
	require.NoError(t, os.WriteFile(src, vorbisFile(t, "TITLE=old", "COMMENT=keep me"), 0o600))

	f, err := Open(src, defaultConfig())
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, ogg.KindVorbis, f.Stream.Kind)
	require.Equal(t, "old", f.Comment.Title())

	c := f.Tag()
	c.SetTitle("new title")
	c.SetArtist("an artist")
	c.SetAlbum("an album")
	c.SetYear(2024)
	c.SetTrack(3)
	c.SetTrackCount(9)
	c.AddPicture(&comment.Picture{
		Type:     comment.PictureFrontCover,
		MIMEType: "image/png",
		Width:    1,
		Height:   1,
		Depth:    24,
		Data:     []byte("\x89PNG fake"),
	})

	dst := filepath.Join(dir, "out.ogg")
	_, err = f.SaveAs(dst, c)
	require.NoError(t, err)

	fd, err := os.Open(dst)
	require.NoError(t, err)
	defer fd.Close()

	m, err := tag.ReadFrom(fd)
	require.NoError(t, err)
	require.Equal(t, tag.OGG, m.FileType())
	require.Equal(t, "new title", m.Title())
	require.Equal(t, "an artist", m.Artist())
	require.Equal(t, "an album", m.Album())
	require.Equal(t, 2024, m.Year())
	track, total := m.Track()
	require.Equal(t, 3, track)
	require.Equal(t, 9, total)
	require.NotNil(t, m.Picture())
	require.Equal(t, "image/png", m.Picture().MIMEType)
	require.Equal(t, []byte("\x89PNG fake"), m.Picture().Data)

	// The source is left untouched.
	g, err := Open(src, defaultConfig())
	require.NoError(t, err)
	defer g.Close()
	require.Equal(t, "old", g.Comment.Title())
	require.Equal(t, "keep me", g.Comment.Description())
}

func TestKeepBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.ogg")
	data := vorbisFile(t, "TITLE=old")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := defaultConfig()
	cfg.KeepBackup = true
	f, err := Open(path, cfg)
	require.NoError(t, err)
	defer f.Close()

	c := f.Tag()
	c.SetTitle("new")
	_, err = f.Save(c)
	require.NoError(t, err)
	require.Equal(t, "new", f.Comment.Title())

	bak, err := os.ReadFile(path + backupSuffix)
	require.NoError(t, err)
	require.Equal(t, data, bak)

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestReadDamagedComment(t *testing.T) {
	pkt := append([]byte("OpusTags"), commentBody("v", "TITLE=ok", "ARTIST=cut")...)
	pkt = pkt[:len(pkt)-2]

	head := []byte("OpusHead")
	head = append(head, 1, 2, 0, 0)
	head = binary.LittleEndian.AppendUint32(head, 48000)
	head = append(head, 0, 0, 0)

	data := bytes.Join([][]byte{
		renderPage(t, ogg.PageHeader{Flags: ogg.FlagBOS, Serial: 1}, head),
		renderPage(t, ogg.PageHeader{Serial: 1, Sequence: 1}, pkt),
		renderPage(t, ogg.PageHeader{Serial: 1, Sequence: 2, GranulePosition: 960}, []byte{1, 2, 3}),
	}, nil)

	f, err := Read(bytes.NewReader(data), int64(len(data)), defaultConfig())
	require.NoError(t, err)
	require.ErrorIs(t, f.CommentErr, comment.ErrTruncated)
	require.Equal(t, "ok", f.Comment.Title())

	var out bytes.Buffer
	c := f.Tag()
	c.SetArtist("whole")
	_, err = f.Rewrite(&out, c)
	require.NoError(t, err)

	g, err := Read(bytes.NewReader(out.Bytes()), int64(out.Len()), defaultConfig())
	require.NoError(t, err)
	require.NoError(t, g.CommentErr)
	require.Equal(t, "whole", g.Comment.Artist())
}

func TestRewriteKeepsInvalidEntries(t *testing.T) {
	data := vorbisFile(t, "TITLE=t", "NOSEPARATOR")

	f, err := Read(bytes.NewReader(data), int64(len(data)), defaultConfig())
	require.NoError(t, err)
	require.ErrorIs(t, f.CommentErr, comment.ErrInvalidField)
	require.Equal(t, []string{"NOSEPARATOR"}, f.Comment.Invalid)

	var out bytes.Buffer
	c := f.Tag()
	c.SetArtist("a")
	_, err = f.Rewrite(&out, c)
	require.NoError(t, err)

	g, err := Read(bytes.NewReader(out.Bytes()), int64(out.Len()), defaultConfig())
	require.NoError(t, err)
	require.Equal(t, "t", g.Comment.Title())
	require.Equal(t, "a", g.Comment.Artist())
	require.Equal(t, []string{"NOSEPARATOR"}, g.Comment.Invalid)
}

func TestReadErrors(t *testing.T) {
	cfg := defaultConfig()

	_, err := Read(bytes.NewReader([]byte("not an ogg file")), 15, cfg)
	require.ErrorIs(t, err, ogg.ErrInvalidSync)

	data := vorbisFile(t)
	cfg.Kinds = "opus"
	_, err = Read(bytes.NewReader(data), int64(len(data)), cfg)
	require.ErrorIs(t, err, ogg.ErrUnsupportedStream)

	_, err = Open(filepath.Join(t.TempDir(), "missing.ogg"), defaultConfig())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRewriteRefusesDamagedHeaders(t *testing.T) {
	data := vorbisFile(t, "TITLE=x")
	// Drop the setup header: the stream ends before its headers do.
	first := bytes.Index(data[1:], []byte("OggS")) + 1
	second := bytes.Index(data[first+1:], []byte("OggS")) + first + 1
	h, err := ogg.ParseHeader(data[first:])
	require.NoError(t, err)
	commentOnly := append([]byte(nil), data[:first]...)
	body := data[first+h.Size() : second]
	lengths, _ := ogg.Unlace(h.Segments)
	commentOnly = append(commentOnly, renderPage(t, ogg.PageHeader{Serial: h.Serial, Sequence: 1}, body[:lengths[0]])...)

	f, err := Read(bytes.NewReader(commentOnly), int64(len(commentOnly)), defaultConfig())
	require.NoError(t, err)
	require.Error(t, f.Stream.Err)
	require.Equal(t, "x", f.Comment.Title())

	_, err = f.Rewrite(io.Discard, f.Tag())
	require.ErrorIs(t, err, ogg.ErrStreamInconsistency)
}

func TestSelectStream(t *testing.T) {
	data := vorbisFile(t, "TITLE=x")
	f, err := Read(bytes.NewReader(data), int64(len(data)), defaultConfig())
	require.NoError(t, err)

	require.NoError(t, f.SelectStream(0x0badcafe))
	require.Error(t, f.SelectStream(1))

	_, err = f.Save(f.Tag())
	require.Error(t, err)
}
