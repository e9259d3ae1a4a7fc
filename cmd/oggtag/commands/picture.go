package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mattermost/oggtag/cmd/oggtag/comment"
)

func loadPicture(path string, typ comment.PictureType) (*comment.Picture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read picture: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode picture %s: %w", path, err)
	}

	p := &comment.Picture{
		Type:        typ,
		MIMEType:    http.DetectContentType(data),
		Description: filepath.Base(path),
		Width:       uint32(cfg.Width),
		Height:      uint32(cfg.Height),
		Depth:       colorDepth(cfg.ColorModel),
		Data:        data,
	}
	if pal, ok := cfg.ColorModel.(color.Palette); ok {
		p.Colors = uint32(len(pal))
	}

	slog.Debug("picture loaded",
		slog.String("path", path),
		slog.String("format", format),
		slog.String("mime_type", p.MIMEType),
		slog.Int("size", len(data)))

	return p, nil
}

func colorDepth(m color.Model) uint32 {
	if _, ok := m.(color.Palette); ok {
		return 8
	}
	switch m {
	case color.GrayModel:
		return 8
	case color.Gray16Model:
		return 16
	case color.RGBAModel, color.NRGBAModel:
		return 32
	case color.RGBA64Model, color.NRGBA64Model:
		return 64
	}
	return 24
}
