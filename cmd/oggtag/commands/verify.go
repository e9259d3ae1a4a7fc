package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattermost/oggtag/cmd/oggtag/ogg"

	"github.com/spf13/cobra"
)

var errVerifyFailed = errors.New("verification failed")

func newVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check every page of a file",
		Long: `Read every page of a file, checking page checksums, sequence numbers and
packet continuity of every logical stream.

The command fails when a supported stream could not collect its headers or
when any page problem was found. Streams of unsupported kinds are listed
but not counted as failures.

Examples:
  oggtag verify song.opus
  oggtag verify song.ogg -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := root.cfg.ScanOptions()
			opts.Mode = ogg.ScanFull
			opts.SkipChecksum = false

			l, err := scanFile(args[0], opts)
			if err != nil {
				return err
			}

			if err := output(cmd.OutOrStdout(), root.cfg.OutputFormat, newLayoutResult(args[0], l)); err != nil {
				return err
			}

			if n := problems(l); n > 0 {
				return fmt.Errorf("%w: %d problems found in %s", errVerifyFailed, n, args[0])
			}

			slog.Debug("file verified", slog.String("path", args[0]))

			return nil
		},
	}
}

func problems(l *ogg.Layout) int {
	n := len(l.Warnings)
	for _, s := range l.Streams {
		if s.Err != nil && !errors.Is(s.Err, ogg.ErrUnsupportedStream) {
			n++
		}
	}
	return n
}
