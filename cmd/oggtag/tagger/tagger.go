// Package tagger reads and writes the tags of Ogg files, rewriting only
// the header pages of the tagged logical stream.
package tagger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattermost/oggtag/cmd/oggtag/comment"
	"github.com/mattermost/oggtag/cmd/oggtag/config"
	"github.com/mattermost/oggtag/cmd/oggtag/ogg"

	"github.com/pion/randutil"
)

const (
	tempSuffixLen   = 10
	tempSuffixRunes = "abcdefghijklmnopqrstuvwxyz0123456789"
	backupSuffix    = ".bak"
)

// File is an Ogg file opened for tagging.
type File struct {
	Layout  *ogg.Layout
	Stream  *ogg.Stream
	Comment *comment.Comment

	// CommentErr is set when the comment header could only be partially
	// decoded.
	CommentErr error

	path string
	file *os.File
	src  io.ReaderAt
	size int64
	cfg  config.TaggerConfig
}

// Open opens and scans the file at path.
func Open(path string, cfg config.TaggerConfig) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := Read(fd, st.Size(), cfg)
	if err != nil {
		fd.Close()
		return nil, err
	}
	f.path = path
	f.file = fd

	return f, nil
}

// Read scans the physical stream from r and decodes the tags of its first
// supported logical stream.
func Read(r io.ReaderAt, size int64, cfg config.TaggerConfig) (*File, error) {
	l, err := ogg.Scan(r, size, cfg.ScanOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to scan stream: %w", err)
	}

	for _, w := range l.Warnings {
		slog.Warn("scan warning",
			slog.Int64("offset", w.Offset),
			slog.String("serial", fmt.Sprintf("%08x", w.Serial)),
			slog.String("err", w.Err.Error()))
	}

	s, err := l.Primary()
	if s == nil {
		return nil, err
	}

	f := &File{
		Layout: l,
		src:    r,
		size:   size,
		cfg:    cfg,
	}
	if err := f.selectStream(s); err != nil {
		return nil, err
	}

	return f, nil
}

// SelectStream switches to the logical stream with the given serial.
func (f *File) SelectStream(serial uint32) error {
	s := f.Layout.Stream(serial)
	if s == nil {
		return fmt.Errorf("no logical stream with serial %08x", serial)
	}
	return f.selectStream(s)
}

func (f *File) selectStream(s *ogg.Stream) error {
	if s.Err != nil {
		if s.Comment() == nil {
			return fmt.Errorf("failed to read headers of stream %08x: %w", s.Serial, s.Err)
		}
		slog.Warn("stream headers are damaged, tags are read-only",
			slog.String("serial", fmt.Sprintf("%08x", s.Serial)),
			slog.String("err", s.Err.Error()))
	}

	body, _, err := s.Kind.CommentBody(s.Comment())
	if err != nil {
		return fmt.Errorf("failed to read comment header: %w", err)
	}

	c, err := comment.Unmarshal(body)
	if err != nil {
		slog.Warn("comment header is damaged",
			slog.String("serial", fmt.Sprintf("%08x", s.Serial)),
			slog.Int("invalid_entries", len(c.Invalid)),
			slog.String("err", err.Error()))
	}

	f.Stream = s
	f.Comment = c
	f.CommentErr = err

	slog.Debug("stream selected",
		slog.String("serial", fmt.Sprintf("%08x", s.Serial)),
		slog.String("kind", s.Kind.String()),
		slog.Int("fields", len(c.Fields)),
		slog.Int64("invariant_start", s.InvariantStart))

	return nil
}

// Path returns the path the file was opened from, if any.
func (f *File) Path() string {
	return f.path
}

func (f *File) Info() ogg.Info {
	return f.Stream.Info()
}

// Tag returns a copy of the current comment, ready to be modified and
// passed to Save.
func (f *File) Tag() *comment.Comment {
	return f.Comment.Clone()
}

// Rewrite writes a copy of the file with its comment replaced by c.
func (f *File) Rewrite(w io.Writer, c *comment.Comment) (*ogg.RewriteResult, error) {
	pkt, err := f.Stream.Kind.WrapComment(c.Marshal(), f.Stream.Comment())
	if err != nil {
		return nil, fmt.Errorf("failed to encode comment header: %w", err)
	}

	res, err := ogg.Rewrite(w, f.src, f.size, f.Layout, f.Stream.Serial, pkt, f.cfg.RewriteOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to rewrite headers: %w", err)
	}

	if res.SequenceShift != 0 {
		slog.Warn("header page count changed, page sequence numbers after the headers are no longer contiguous",
			slog.String("serial", fmt.Sprintf("%08x", res.Serial)),
			slog.Int("original_pages", res.OriginalPages),
			slog.Int("pages", res.Pages))
	}

	slog.Debug("headers rewritten",
		slog.String("serial", fmt.Sprintf("%08x", res.Serial)),
		slog.Int("pages", res.Pages),
		slog.Int64("invariant_start", res.InvariantStart),
		slog.Int64("written", res.Written))

	return res, nil
}

// Save replaces the file on disk with a copy carrying comment c, then
// rescans it.
func (f *File) Save(c *comment.Comment) (*ogg.RewriteResult, error) {
	if f.path == "" {
		return nil, errors.New("file was not opened from a path")
	}

	res, err := f.SaveAs(f.path, c)
	if err != nil {
		return nil, err
	}

	if err := f.reload(); err != nil {
		return nil, fmt.Errorf("failed to reload file: %w", err)
	}

	return res, nil
}

// SaveAs writes a copy carrying comment c to path. The copy is written to a
// temporary file in the same directory and renamed over path once synced.
func (f *File) SaveAs(path string, c *comment.Comment) (res *ogg.RewriteResult, err error) {
	suffix, err := randutil.GenerateCryptoRandomString(tempSuffixLen, tempSuffixRunes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary name: %w", err)
	}
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".oggtag-"+suffix)

	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}

	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil {
				slog.Error("failed to remove temporary file", slog.String("path", tmpPath), slog.String("err", rmErr.Error()))
			}
		}
	}()

	bw := bufio.NewWriter(out)
	if res, err = f.Rewrite(bw, c); err != nil {
		return nil, err
	}
	if err = bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err = out.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err = out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}

	if f.cfg.KeepBackup {
		if err = backup(path); err != nil {
			return nil, err
		}
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("failed to replace file: %w", err)
	}

	slog.Info("tags saved", slog.String("path", path), slog.Int64("size", res.Written))

	return res, nil
}

func backup(path string) error {
	bak := path + backupSuffix
	if err := os.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old backup: %w", err)
	}
	if err := os.Link(path, bak); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to create backup: %w", err)
	}
	slog.Debug("backup created", slog.String("path", bak))
	return nil
}

func (f *File) reload() error {
	serial := f.Stream.Serial

	nf, err := Open(f.path, f.cfg)
	if err != nil {
		return err
	}
	if s := nf.Layout.Stream(serial); s != nil && s != nf.Stream {
		if err := nf.selectStream(s); err != nil {
			nf.Close()
			return err
		}
	}

	if f.file != nil {
		f.file.Close()
	}
	*f = *nf

	return nil
}

func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
