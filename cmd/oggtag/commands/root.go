package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mattermost/oggtag/cmd/oggtag/config"

	"github.com/spf13/cobra"
)

// rootOptions holds the global flags and the config they resolve to.
type rootOptions struct {
	cfgFile string
	output  string
	verbose bool

	cfg config.TaggerConfig
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "oggtag",
		Short: "Read and write tags of Ogg files",
		Long: `oggtag reads and edits the comment header of Ogg Opus, Vorbis, FLAC,
Speex and Theora files. Only the header pages of the tagged stream are
rewritten: every media page is copied byte for byte.

Configuration is read from the file given with --config or from OGGTAG_*
environment variables.

Examples:
  # Show the tags of a file
  oggtag show song.opus

  # Set a few tags
  oggtag set song.opus --title "Title" --artist "Artist" --track 3/12

  # Check every page of a file
  oggtag verify song.opus`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "output format: text, yaml or json")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newSetCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))

	return cmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.output != "" {
		cfg.OutputFormat = config.OutputFormat(o.output)
		if !cfg.OutputFormat.IsValid() {
			return fmt.Errorf("unsupported output format: %s", o.output)
		}
	}

	level := cfg.LogLevel.Level()
	if o.verbose {
		level = slog.LevelDebug
	}

	// Logs go to stderr so they never mix with the command output.
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		AddSource:   o.verbose,
		Level:       level,
		ReplaceAttr: slogReplaceAttr,
	}))
	slog.SetDefault(logger)

	o.cfg = cfg

	slog.Debug("config loaded", slog.Any("config", cfg.ToMap()))

	return nil
}

func slogReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if source, ok := a.Value.Any().(*slog.Source); ok && source.File != "" {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}
