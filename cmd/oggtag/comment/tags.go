package comment

import (
	"strconv"
	"strings"
)

const (
	KeyTitle       = "TITLE"
	KeyArtist      = "ARTIST"
	KeyAlbum       = "ALBUM"
	KeyAlbumArtist = "ALBUMARTIST"
	KeyComposer    = "COMPOSER"
	KeyGenre       = "GENRE"
	KeyDate        = "DATE"
	KeyDescription = "DESCRIPTION"
	KeyComment     = "COMMENT"
	KeyTrackNumber = "TRACKNUMBER"
	KeyTrackTotal  = "TRACKTOTAL"
	KeyTotalTracks = "TOTALTRACKS"
	KeyDiscNumber  = "DISCNUMBER"
	KeyDiscTotal   = "DISCTOTAL"
	KeyTotalDiscs  = "TOTALDISCS"
)

// Tags is the common subset of fields most players display.
type Tags struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Artist      string `json:"artist,omitempty" yaml:"artist,omitempty"`
	Album       string `json:"album,omitempty" yaml:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty" yaml:"album_artist,omitempty"`
	Composer    string `json:"composer,omitempty" yaml:"composer,omitempty"`
	Genre       string `json:"genre,omitempty" yaml:"genre,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Year        int    `json:"year,omitempty" yaml:"year,omitempty"`
	Track       int    `json:"track,omitempty" yaml:"track,omitempty"`
	TrackCount  int    `json:"track_count,omitempty" yaml:"track_count,omitempty"`
	Disc        int    `json:"disc,omitempty" yaml:"disc,omitempty"`
	DiscCount   int    `json:"disc_count,omitempty" yaml:"disc_count,omitempty"`
}

func (c *Comment) Tags() Tags {
	return Tags{
		Title:       c.Title(),
		Artist:      c.Artist(),
		Album:       c.Album(),
		AlbumArtist: c.GetFirst(KeyAlbumArtist),
		Composer:    c.GetFirst(KeyComposer),
		Genre:       c.Genre(),
		Description: c.Description(),
		Year:        c.Year(),
		Track:       c.Track(),
		TrackCount:  c.TrackCount(),
		Disc:        c.Disc(),
		DiscCount:   c.DiscCount(),
	}
}

func (c *Comment) Title() string  { return c.GetFirst(KeyTitle) }
func (c *Comment) Artist() string { return c.GetFirst(KeyArtist) }
func (c *Comment) Album() string  { return c.GetFirst(KeyAlbum) }
func (c *Comment) Genre() string  { return c.GetFirst(KeyGenre) }

func (c *Comment) SetTitle(v string)  { c.setString(KeyTitle, v) }
func (c *Comment) SetArtist(v string) { c.setString(KeyArtist, v) }
func (c *Comment) SetAlbum(v string)  { c.setString(KeyAlbum, v) }
func (c *Comment) SetGenre(v string)  { c.setString(KeyGenre, v) }

// Description falls back to COMMENT, used by some taggers instead.
func (c *Comment) Description() string {
	if v := c.GetFirst(KeyDescription); v != "" {
		return v
	}
	return c.GetFirst(KeyComment)
}

func (c *Comment) SetDescription(v string) {
	c.Remove(KeyComment)
	c.setString(KeyDescription, v)
}

// Year returns the year at the start of DATE, or zero.
func (c *Comment) Year() int {
	date := strings.TrimSpace(c.GetFirst(KeyDate))
	if len(date) > 4 {
		date = date[:4]
	}
	y, err := strconv.Atoi(date)
	if err != nil || y < 0 {
		return 0
	}
	return y
}

func (c *Comment) SetYear(y int) {
	c.setNumber(KeyDate, y)
}

// Track reads TRACKNUMBER, which may also hold the total as "n/total".
func (c *Comment) Track() int {
	n, _ := splitNumber(c.GetFirst(KeyTrackNumber))
	return n
}

func (c *Comment) TrackCount() int {
	for _, key := range []string{KeyTrackTotal, KeyTotalTracks} {
		if n, err := strconv.Atoi(strings.TrimSpace(c.GetFirst(key))); err == nil && n > 0 {
			return n
		}
	}
	_, total := splitNumber(c.GetFirst(KeyTrackNumber))
	return total
}

func (c *Comment) SetTrack(n int) {
	c.setNumber(KeyTrackNumber, n)
}

func (c *Comment) SetTrackCount(n int) {
	c.Remove(KeyTotalTracks)
	c.setNumber(KeyTrackTotal, n)
}

func (c *Comment) Disc() int {
	n, _ := splitNumber(c.GetFirst(KeyDiscNumber))
	return n
}

func (c *Comment) DiscCount() int {
	for _, key := range []string{KeyDiscTotal, KeyTotalDiscs} {
		if n, err := strconv.Atoi(strings.TrimSpace(c.GetFirst(key))); err == nil && n > 0 {
			return n
		}
	}
	_, total := splitNumber(c.GetFirst(KeyDiscNumber))
	return total
}

func (c *Comment) SetDisc(n int) {
	c.setNumber(KeyDiscNumber, n)
}

func (c *Comment) SetDiscCount(n int) {
	c.Remove(KeyTotalDiscs)
	c.setNumber(KeyDiscTotal, n)
}

func (c *Comment) setString(key, v string) {
	if v == "" {
		c.Remove(key)
		return
	}
	c.Set(key, v)
}

func (c *Comment) setNumber(key string, n int) {
	if n <= 0 {
		c.Remove(key)
		return
	}
	c.Set(key, strconv.Itoa(n))
}

func splitNumber(s string) (int, int) {
	num, total, _ := strings.Cut(strings.TrimSpace(s), "/")
	n, _ := strconv.Atoi(strings.TrimSpace(num))
	t, _ := strconv.Atoi(strings.TrimSpace(total))
	return max(n, 0), max(t, 0)
}
