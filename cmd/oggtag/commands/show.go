package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattermost/oggtag/cmd/oggtag/comment"
	"github.com/mattermost/oggtag/cmd/oggtag/config"
	"github.com/mattermost/oggtag/cmd/oggtag/ogg"
	"github.com/mattermost/oggtag/cmd/oggtag/tagger"

	"github.com/spf13/cobra"
)

type showResult struct {
	Path     string             `json:"path" yaml:"path"`
	Serial   string             `json:"serial" yaml:"serial"`
	Info     ogg.Info           `json:"info" yaml:"info"`
	Vendor   string             `json:"vendor" yaml:"vendor"`
	Tags     comment.Tags       `json:"tags" yaml:"tags"`
	Fields   []comment.Field    `json:"fields" yaml:"fields"`
	Pictures []*comment.Picture `json:"pictures,omitempty" yaml:"pictures,omitempty"`
	Warnings []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var serial string

	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Show the tags of a file",
		Long: `Show the stream kind, audio properties and comment fields of a file.

Picture fields are summarized rather than printed.

Examples:
  oggtag show song.opus
  oggtag show song.ogg -o json
  oggtag show multiplexed.ogg --serial 1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openFile(args[0], serial, root.cfg)
			if err != nil {
				return err
			}
			defer f.Close()

			return output(cmd.OutOrStdout(), root.cfg.OutputFormat, newShowResult(f))
		},
	}

	cmd.Flags().StringVar(&serial, "serial", "", "serial number (hex) of the logical stream to show")

	return cmd
}

func newShowResult(f *tagger.File) *showResult {
	res := &showResult{
		Path:     f.Path(),
		Serial:   fmt.Sprintf("%08x", f.Stream.Serial),
		Info:     f.Info(),
		Vendor:   f.Comment.Vendor,
		Tags:     f.Comment.Tags(),
		Warnings: warnings(f.Layout),
	}

	for _, field := range f.Comment.Fields {
		if comment.NormalizeKey(field.Key) == comment.PictureKey {
			continue
		}
		res.Fields = append(res.Fields, field)
	}

	pictures, err := f.Comment.Pictures()
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	res.Pictures = pictures

	if f.CommentErr != nil {
		res.Warnings = append(res.Warnings, f.CommentErr.Error())
	}

	return res
}

func (r *showResult) writeText(w io.Writer) error {
	t := newTable(w)
	t.rowIf("path", r.Path)
	t.row("serial", r.Serial)
	t.row("kind", r.Info.Kind)
	t.rowIf("sample rate", r.Info.SampleRate)
	t.rowIf("channels", r.Info.Channels)
	t.row("vendor", r.Vendor)
	for _, field := range r.Fields {
		t.row(field.Key, field.Value)
	}
	for _, p := range r.Pictures {
		t.row("picture", fmt.Sprintf("type %d, %s, %dx%d, %d bytes", p.Type, p.MIMEType, p.Width, p.Height, len(p.Data)))
	}
	for _, warn := range r.Warnings {
		t.row("warning", warn)
	}
	return t.flush()
}

func openFile(path, serial string, cfg config.TaggerConfig) (*tagger.File, error) {
	f, err := tagger.Open(path, cfg)
	if err != nil {
		return nil, err
	}

	if serial != "" {
		n, err := parseSerial(serial)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SelectStream(n); err != nil {
			f.Close()
			return nil, err
		}
	}

	slog.Debug("file opened",
		slog.String("path", path),
		slog.String("serial", fmt.Sprintf("%08x", f.Stream.Serial)),
		slog.Int("streams", len(f.Layout.Streams)))

	return f, nil
}

func parseSerial(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid serial %q: %w", s, err)
	}
	return uint32(n), nil
}

func warnings(l *ogg.Layout) []string {
	var out []string
	for _, w := range l.Warnings {
		out = append(out, w.String())
	}
	return out
}
