package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattermost/oggtag/cmd/oggtag/ogg"

	"github.com/spf13/cobra"
)

type pageResult struct {
	Offset   int64  `json:"offset" yaml:"offset"`
	Size     int    `json:"size" yaml:"size"`
	Sequence uint32 `json:"sequence" yaml:"sequence"`
	Granule  int64  `json:"granule" yaml:"granule"`
	Flags    string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

type streamResult struct {
	Serial         string          `json:"serial" yaml:"serial"`
	Kind           ogg.Kind        `json:"kind" yaml:"kind"`
	State          ogg.StreamState `json:"state" yaml:"state"`
	Info           *ogg.Info       `json:"info,omitempty" yaml:"info,omitempty"`
	HeaderSizes    []int           `json:"header_sizes" yaml:"header_sizes"`
	HeaderPages    []pageResult    `json:"header_pages" yaml:"header_pages"`
	InvariantStart int64           `json:"invariant_start" yaml:"invariant_start"`
	Trailing       int             `json:"trailing_packets,omitempty" yaml:"trailing_packets,omitempty"`
	Pages          int             `json:"pages" yaml:"pages"`
	FirstSequence  uint32          `json:"first_sequence" yaml:"first_sequence"`
	LastSequence   uint32          `json:"last_sequence" yaml:"last_sequence"`
	LastGranule    int64           `json:"last_granule" yaml:"last_granule"`
	EOS            bool            `json:"eos" yaml:"eos"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty"`
}

type layoutResult struct {
	Path     string         `json:"path" yaml:"path"`
	Size     int64          `json:"size" yaml:"size"`
	Prefix   int64          `json:"prefix" yaml:"prefix"`
	End      int64          `json:"end" yaml:"end"`
	Chained  bool           `json:"chained" yaml:"chained"`
	Streams  []streamResult `json:"streams" yaml:"streams"`
	Warnings []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the page layout of a file",
		Long: `Show the logical streams of a file, their header packets and pages and the
offset from which a tag rewrite leaves the file untouched.

Examples:
  oggtag inspect song.opus
  oggtag inspect song.ogg --full -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := root.cfg.ScanOptions()
			if full {
				opts.Mode = ogg.ScanFull
			}

			l, err := scanFile(args[0], opts)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), root.cfg.OutputFormat, newLayoutResult(args[0], l))
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "read every page instead of stopping after the headers")

	return cmd
}

func scanFile(path string, opts ogg.ScanOptions) (*ogg.Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	l, err := ogg.Scan(f, st.Size(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan stream: %w", err)
	}

	slog.Debug("file scanned",
		slog.String("path", path),
		slog.Int("streams", len(l.Streams)),
		slog.Int("warnings", len(l.Warnings)),
		slog.Int64("end", l.End))

	return l, nil
}

func newLayoutResult(path string, l *ogg.Layout) *layoutResult {
	res := &layoutResult{
		Path:     path,
		Size:     l.Size,
		Prefix:   l.Prefix,
		End:      l.End,
		Chained:  l.Chained,
		Warnings: warnings(l),
	}

	for _, s := range l.Streams {
		sr := streamResult{
			Serial:         fmt.Sprintf("%08x", s.Serial),
			Kind:           s.Kind,
			State:          s.State,
			InvariantStart: s.InvariantStart,
			Pages:          s.Pages,
			FirstSequence:  s.FirstSequence,
			LastSequence:   s.LastSequence,
			LastGranule:    granule(s.LastGranule),
			EOS:            s.EOS,
		}
		if len(s.Headers) > 0 && s.Kind != ogg.KindUnknown {
			info := s.Info()
			sr.Info = &info
		}
		for _, h := range s.Headers {
			sr.HeaderSizes = append(sr.HeaderSizes, len(h))
		}
		for _, ref := range s.HeaderPages {
			sr.HeaderPages = append(sr.HeaderPages, pageResult{
				Offset:   ref.Offset,
				Size:     ref.Size,
				Sequence: ref.Header.Sequence,
				Granule:  granule(ref.Header.GranulePosition),
				Flags:    pageFlags(ref.Header.Flags),
			})
		}
		if s.Trailing != nil {
			sr.Trailing = len(s.Trailing.Packets)
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		res.Streams = append(res.Streams, sr)
	}

	return res
}

// granule shows the "no packet ends here" value as -1.
func granule(g uint64) int64 {
	if g == ogg.GranuleNone {
		return -1
	}
	return int64(g)
}

func pageFlags(f ogg.PageFlags) string {
	var s string
	for _, flag := range []struct {
		bit  ogg.PageFlags
		name string
	}{
		{ogg.FlagContinued, "continued"},
		{ogg.FlagBOS, "bos"},
		{ogg.FlagEOS, "eos"},
	} {
		if f&flag.bit == 0 {
			continue
		}
		if s != "" {
			s += ","
		}
		s += flag.name
	}
	return s
}

func (r *layoutResult) writeText(w io.Writer) error {
	t := newTable(w)
	t.row("path", r.Path)
	t.row("size", r.Size)
	if r.Prefix > 0 {
		t.row("leading junk", r.Prefix)
	}
	t.row("scanned up to", r.End)
	if r.Chained {
		t.row("chained", "yes, only the first link was read")
	}
	for _, s := range r.Streams {
		t.row("stream", fmt.Sprintf("%s %s (%s)", s.Serial, s.Kind, s.State))
		if s.Info != nil {
			t.rowIf("  sample rate", s.Info.SampleRate)
			t.rowIf("  channels", s.Info.Channels)
		}
		t.row("  header packets", fmt.Sprint(s.HeaderSizes))
		for _, p := range s.HeaderPages {
			t.row("  header page", fmt.Sprintf("offset %d, %d bytes, sequence %d, granule %d %s", p.Offset, p.Size, p.Sequence, p.Granule, p.Flags))
		}
		if s.InvariantStart > 0 {
			t.row("  invariant start", s.InvariantStart)
		}
		t.rowIf("  trailing packets", s.Trailing)
		t.row("  pages", fmt.Sprintf("%d (sequence %d-%d)", s.Pages, s.FirstSequence, s.LastSequence))
		t.row("  last granule", s.LastGranule)
		if s.EOS {
			t.row("  end of stream", "yes")
		}
		t.rowIf("  error", s.Error)
	}
	for _, warn := range r.Warnings {
		t.row("warning", warn)
	}
	return t.flush()
}
