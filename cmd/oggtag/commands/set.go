package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattermost/oggtag/cmd/oggtag/comment"
	"github.com/mattermost/oggtag/cmd/oggtag/ogg"

	"github.com/spf13/cobra"
)

type setOptions struct {
	serial string
	saveAs string

	title       string
	artist      string
	album       string
	albumArtist string
	genre       string
	description string
	year        int
	track       string
	disc        string
	vendor      string

	fields        []string
	remove        []string
	pictures      []string
	pictureType   uint32
	clearPictures bool
}

type setResult struct {
	Path          string `json:"path" yaml:"path"`
	Serial        string `json:"serial" yaml:"serial"`
	OriginalPages int    `json:"original_pages" yaml:"original_pages"`
	Pages         int    `json:"pages" yaml:"pages"`
	SequenceShift int    `json:"sequence_shift" yaml:"sequence_shift"`
	Written       int64  `json:"written" yaml:"written"`
}

func newSetCmd(root *rootOptions) *cobra.Command {
	opts := &setOptions{}

	cmd := &cobra.Command{
		Use:   "set <file>",
		Short: "Change the tags of a file",
		Long: `Change the comment fields of a file and save it in place.

Fields are removed first (--remove), then replaced (--field), then the
named tag flags and pictures are applied. Setting a named tag to an
empty string removes it.

Examples:
  oggtag set song.opus --title "Title" --artist "Artist"
  oggtag set song.opus --track 3/12 --year 2024
  oggtag set song.opus --field LANGUAGE=en --remove COMMENT
  oggtag set song.opus --clear-pictures --picture cover.jpg
  oggtag set song.opus --title "Title" --save-as copy.opus`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFile(args[0], opts.serial, root.cfg)
			if err != nil {
				return err
			}
			defer f.Close()

			c := f.Tag()
			if err := opts.apply(cmd, c); err != nil {
				return err
			}

			var res *ogg.RewriteResult
			path := args[0]
			if opts.saveAs != "" {
				path = opts.saveAs
				res, err = f.SaveAs(opts.saveAs, c)
			} else {
				res, err = f.Save(c)
			}
			if err != nil {
				return fmt.Errorf("failed to save tags: %w", err)
			}

			return output(cmd.OutOrStdout(), root.cfg.OutputFormat, &setResult{
				Path:          path,
				Serial:        fmt.Sprintf("%08x", res.Serial),
				OriginalPages: res.OriginalPages,
				Pages:         res.Pages,
				SequenceShift: res.SequenceShift,
				Written:       res.Written,
			})
		},
	}

	cmd.Flags().StringVar(&opts.serial, "serial", "", "serial number (hex) of the logical stream to tag")
	cmd.Flags().StringVar(&opts.saveAs, "save-as", "", "write the result to this path instead of replacing the file")
	cmd.Flags().StringVar(&opts.title, "title", "", "title")
	cmd.Flags().StringVar(&opts.artist, "artist", "", "artist")
	cmd.Flags().StringVar(&opts.album, "album", "", "album")
	cmd.Flags().StringVar(&opts.albumArtist, "album-artist", "", "album artist")
	cmd.Flags().StringVar(&opts.genre, "genre", "", "genre")
	cmd.Flags().StringVar(&opts.description, "description", "", "description")
	cmd.Flags().IntVar(&opts.year, "year", 0, "year, 0 removes the date")
	cmd.Flags().StringVar(&opts.track, "track", "", "track number, optionally with total (N or N/M)")
	cmd.Flags().StringVar(&opts.disc, "disc", "", "disc number, optionally with total (N or N/M)")
	cmd.Flags().StringVar(&opts.vendor, "vendor", "", "vendor string")
	cmd.Flags().StringArrayVar(&opts.fields, "field", nil, "set a field (KEY=VALUE), repeat the key for several values")
	cmd.Flags().StringArrayVar(&opts.remove, "remove", nil, "remove every value of a field")
	cmd.Flags().StringArrayVar(&opts.pictures, "picture", nil, "add a picture from an image file")
	cmd.Flags().Uint32Var(&opts.pictureType, "picture-type", uint32(comment.PictureFrontCover), "picture type of added pictures")
	cmd.Flags().BoolVar(&opts.clearPictures, "clear-pictures", false, "remove every picture")

	return cmd
}

func (o *setOptions) apply(cmd *cobra.Command, c *comment.Comment) error {
	for _, key := range o.remove {
		c.Remove(key)
	}

	fields, err := parseFields(o.fields)
	if err != nil {
		return err
	}
	for _, f := range fields {
		c.Set(f.key, f.values...)
	}

	changed := cmd.Flags().Changed
	for _, tag := range []struct {
		flag  string
		value string
		set   func(string)
	}{
		{"title", o.title, c.SetTitle},
		{"artist", o.artist, c.SetArtist},
		{"album", o.album, c.SetAlbum},
		{"album-artist", o.albumArtist, func(v string) { c.Set(comment.KeyAlbumArtist, nonEmpty(v)...) }},
		{"genre", o.genre, c.SetGenre},
		{"description", o.description, c.SetDescription},
	} {
		if changed(tag.flag) {
			tag.set(tag.value)
		}
	}

	if changed("year") {
		c.SetYear(o.year)
	}
	if changed("track") {
		if err := setPosition(o.track, c.TrackCount, c.SetTrack, c.SetTrackCount); err != nil {
			return fmt.Errorf("invalid track: %w", err)
		}
	}
	if changed("disc") {
		if err := setPosition(o.disc, c.DiscCount, c.SetDisc, c.SetDiscCount); err != nil {
			return fmt.Errorf("invalid disc: %w", err)
		}
	}
	if changed("vendor") {
		c.Vendor = o.vendor
	}

	if o.clearPictures {
		c.RemovePictures()
	}
	for _, path := range o.pictures {
		p, err := loadPicture(path, comment.PictureType(o.pictureType))
		if err != nil {
			return err
		}
		c.AddPicture(p)
	}

	return nil
}

type fieldValues struct {
	key    string
	values []string
}

// parseFields groups KEY=VALUE arguments by key, keeping the order in which
// keys first appear.
func parseFields(args []string) ([]fieldValues, error) {
	var out []fieldValues
	index := map[string]int{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || !comment.ValidKey(key) {
			return nil, fmt.Errorf("invalid field %q, expected KEY=VALUE", arg)
		}
		key = comment.NormalizeKey(key)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, fieldValues{key: key})
		}
		out[i].values = append(out[i].values, value)
	}
	return out, nil
}

// parsePosition parses "N" or "N/M". An empty string is 0/0.
func parsePosition(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	num, total, hasTotal := strings.Cut(s, "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 0 {
		return 0, 0, fmt.Errorf("%q is not a position", s)
	}
	if !hasTotal {
		return n, 0, nil
	}
	t, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil || t < 0 {
		return 0, 0, fmt.Errorf("%q is not a position", s)
	}
	return n, t, nil
}

// setPosition applies "N" or "N/M". A number alone keeps the current total,
// which may have been stored as "n/total" in the number field.
func setPosition(s string, count func() int, setNumber, setCount func(int)) error {
	n, total, err := parsePosition(s)
	if err != nil {
		return err
	}
	prev := count()
	setNumber(n)
	switch {
	case total > 0:
		setCount(total)
	case n == 0:
		setCount(0)
	case prev > 0:
		setCount(prev)
	}
	return nil
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func (r *setResult) writeText(w io.Writer) error {
	t := newTable(w)
	t.row("path", r.Path)
	t.row("serial", r.Serial)
	t.row("header pages", fmt.Sprintf("%d -> %d", r.OriginalPages, r.Pages))
	t.rowIf("sequence shift", r.SequenceShift)
	t.row("written", r.Written)
	return t.flush()
}
