package comment

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// PictureKey is the field holding base64 encoded FLAC picture blocks.
const PictureKey = "METADATA_BLOCK_PICTURE"

// PictureType follows the ID3v2 APIC picture types.
type PictureType uint32

const (
	PictureOther PictureType = iota
	PictureFileIcon
	PictureOtherFileIcon
	PictureFrontCover
	PictureBackCover
	PictureLeaflet
	PictureMedia
	PictureLeadArtist
	PictureArtist
	PictureConductor
	PictureBand
	PictureComposer
	PictureLyricist
	PictureRecordingLocation
	PictureDuringRecording
	PictureDuringPerformance
	PictureScreenCapture
	PictureBrightFish
	PictureIllustration
	PictureBandLogo
	PicturePublisherLogo
)

type Picture struct {
	Type        PictureType `json:"type" yaml:"type"`
	MIMEType    string      `json:"mime_type" yaml:"mime_type"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Width       uint32      `json:"width" yaml:"width"`
	Height      uint32      `json:"height" yaml:"height"`
	Depth       uint32      `json:"depth" yaml:"depth"`
	Colors      uint32      `json:"colors,omitempty" yaml:"colors,omitempty"`
	Data        []byte      `json:"-" yaml:"-"`
}

// Marshal encodes the picture as a FLAC METADATA_BLOCK_PICTURE body.
func (p *Picture) Marshal() []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(p.Type))
	b = binary.BigEndian.AppendUint32(b, uint32(len(p.MIMEType)))
	b = append(b, p.MIMEType...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(p.Description)))
	b = append(b, p.Description...)
	b = binary.BigEndian.AppendUint32(b, p.Width)
	b = binary.BigEndian.AppendUint32(b, p.Height)
	b = binary.BigEndian.AppendUint32(b, p.Depth)
	b = binary.BigEndian.AppendUint32(b, p.Colors)
	b = binary.BigEndian.AppendUint32(b, uint32(len(p.Data)))
	return append(b, p.Data...)
}

func UnmarshalPicture(b []byte) (*Picture, error) {
	var off int
	u32 := func() (uint32, error) {
		if len(b)-off < 4 {
			return 0, fmt.Errorf("%w: picture block", ErrTruncated)
		}
		v := binary.BigEndian.Uint32(b[off:])
		off += 4
		return v, nil
	}
	bytesN := func() ([]byte, error) {
		n, err := u32()
		if err != nil {
			return nil, err
		}
		if uint64(n) > uint64(len(b)-off) {
			return nil, fmt.Errorf("%w: picture block", ErrTruncated)
		}
		v := b[off : off+int(n)]
		off += int(n)
		return v, nil
	}

	p := &Picture{}
	t, err := u32()
	if err != nil {
		return nil, err
	}
	p.Type = PictureType(t)

	mime, err := bytesN()
	if err != nil {
		return nil, err
	}
	p.MIMEType = string(mime)

	desc, err := bytesN()
	if err != nil {
		return nil, err
	}
	p.Description = string(desc)

	for _, v := range []*uint32{&p.Width, &p.Height, &p.Depth, &p.Colors} {
		if *v, err = u32(); err != nil {
			return nil, err
		}
	}

	data, err := bytesN()
	if err != nil {
		return nil, err
	}
	p.Data = append([]byte(nil), data...)

	return p, nil
}

// Pictures decodes every picture field. Fields that cannot be decoded are
// skipped and reported in the returned error.
func (c *Comment) Pictures() ([]*Picture, error) {
	var pictures []*Picture
	var errs []error
	for i, v := range c.Get(PictureKey) {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("picture %d: %w", i, err))
			continue
		}
		p, err := UnmarshalPicture(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("picture %d: %w", i, err))
			continue
		}
		pictures = append(pictures, p)
	}
	return pictures, errors.Join(errs...)
}

func (c *Comment) AddPicture(p *Picture) {
	c.Add(PictureKey, base64.StdEncoding.EncodeToString(p.Marshal()))
}

func (c *Comment) RemovePictures() int {
	return c.Remove(PictureKey)
}
