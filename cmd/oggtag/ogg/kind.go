package ogg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Kind identifies the codec carried by a logical stream. The set is closed:
// a stream whose identification packet matches none of them is unsupported.
type Kind int

const (
	KindUnknown Kind = iota
	KindOpus
	KindVorbis
	KindFLAC
	KindSpeex
	KindTheora
)

// DefaultKinds lists every recognized kind in detection order.
var DefaultKinds = []Kind{KindOpus, KindVorbis, KindFLAC, KindSpeex, KindTheora}

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindOpus:    "opus",
	KindVorbis:  "vorbis",
	KindFLAC:    "flac",
	KindSpeex:   "speex",
	KindTheora:  "theora",
}

const (
	opusIDSignature      = "OpusHead"
	opusCommentSignature = "OpusTags"
	vorbisIDPrefix       = "\x01vorbis"
	vorbisCommentPrefix  = "\x03vorbis"
	theoraIDPrefix       = "\x80theora"
	theoraCommentPrefix  = "\x81theora"
	speexSignature       = "Speex   "
	flacSignature        = "\x7fFLAC"
	flacNativeSignature  = "fLaC"

	flacCommentBlockType = 4
	flacLastBlockFlag    = 0x80
	flacMaxBlockSize     = 1<<24 - 1
	speexHeaderLen       = 80
)

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind maps a kind name, case-insensitively, to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if k != KindUnknown && name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedStream, s)
}

func detectKind(kinds []Kind, id []byte) Kind {
	for _, k := range kinds {
		if k.isIdentification(id) {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) isIdentification(id []byte) bool {
	switch k {
	case KindOpus:
		return len(id) >= 19 && bytes.HasPrefix(id, []byte(opusIDSignature))
	case KindVorbis:
		return len(id) >= 30 && bytes.HasPrefix(id, []byte(vorbisIDPrefix))
	case KindFLAC:
		return len(id) >= 13 && bytes.HasPrefix(id, []byte(flacSignature)) && string(id[9:13]) == flacNativeSignature
	case KindSpeex:
		return len(id) >= speexHeaderLen && bytes.HasPrefix(id, []byte(speexSignature))
	case KindTheora:
		return len(id) >= 42 && bytes.HasPrefix(id, []byte(theoraIDPrefix))
	}
	return false
}

// headerCount returns the number of header packets, identification
// included. Zero means the count is open and the headers end at the packet
// flagged as the last metadata block.
func (k Kind) headerCount(id []byte) int {
	switch k {
	case KindOpus:
		return 2
	case KindVorbis, KindTheora:
		return 3
	case KindFLAC:
		n := binary.BigEndian.Uint16(id[7:9])
		if n == 0 {
			return 0
		}
		return 1 + int(n)
	case KindSpeex:
		return 2 + int(binary.LittleEndian.Uint32(id[68:72]))
	}
	return 0
}

func (k Kind) isLastHeader(packet []byte) bool {
	return k == KindFLAC && len(packet) > 0 && packet[0]&flacLastBlockFlag != 0
}

// Info is what the identification header tells about a stream.
type Info struct {
	Kind       Kind   `json:"kind" yaml:"kind"`
	SampleRate uint32 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty" yaml:"channels,omitempty"`
}

func (k Kind) info(id []byte) Info {
	info := Info{Kind: k}
	switch k {
	case KindOpus:
		info.Channels = int(id[9])
		info.SampleRate = binary.LittleEndian.Uint32(id[12:16])
	case KindVorbis:
		info.Channels = int(id[11])
		info.SampleRate = binary.LittleEndian.Uint32(id[12:16])
	case KindFLAC:
		// STREAMINFO follows the mapping header and the metadata block header.
		if len(id) >= 30 {
			b := id[27:30]
			info.SampleRate = uint32(b[0])<<12 | uint32(b[1])<<4 | uint32(b[2])>>4
			info.Channels = int(b[2]>>1&0x07) + 1
		}
	case KindSpeex:
		info.SampleRate = binary.LittleEndian.Uint32(id[36:40])
		info.Channels = int(binary.LittleEndian.Uint32(id[48:52]))
	}
	return info
}

// CommentBody strips the codec framing from a comment header packet. body
// is the comment structure (vendor and field list) and tail is whatever
// follows it inside the packet, such as Opus padding or the Vorbis framing
// bit. A comment structure that cannot be walked is returned whole as body.
func (k Kind) CommentBody(packet []byte) (body, tail []byte, err error) {
	var rest []byte
	switch k {
	case KindOpus:
		if !bytes.HasPrefix(packet, []byte(opusCommentSignature)) {
			return nil, nil, fmt.Errorf("%w: bad opus comment signature", ErrUnsupportedStream)
		}
		rest = packet[len(opusCommentSignature):]
	case KindVorbis:
		if !bytes.HasPrefix(packet, []byte(vorbisCommentPrefix)) {
			return nil, nil, fmt.Errorf("%w: bad vorbis comment signature", ErrUnsupportedStream)
		}
		rest = packet[len(vorbisCommentPrefix):]
	case KindTheora:
		if !bytes.HasPrefix(packet, []byte(theoraCommentPrefix)) {
			return nil, nil, fmt.Errorf("%w: bad theora comment signature", ErrUnsupportedStream)
		}
		rest = packet[len(theoraCommentPrefix):]
	case KindSpeex:
		rest = packet
	case KindFLAC:
		if len(packet) < 4 || packet[0]&^flacLastBlockFlag != flacCommentBlockType {
			return nil, nil, fmt.Errorf("%w: second flac header is not a comment block", ErrUnsupportedStream)
		}
		n := int(packet[1])<<16 | int(packet[2])<<8 | int(packet[3])
		if n > len(packet)-4 {
			n = len(packet) - 4
		}
		rest = packet[4 : 4+n]
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedStream, k)
	}

	end, ok := commentEnd(rest)
	if !ok {
		return rest, nil, nil
	}
	return rest[:end], rest[end:], nil
}

// WrapComment frames a comment structure as the comment header packet of
// this kind. original is the packet being replaced; it provides the FLAC
// last-block flag and the Opus trailing data.
func (k Kind) WrapComment(body, original []byte) ([]byte, error) {
	var out []byte
	switch k {
	case KindOpus:
		out = append([]byte(opusCommentSignature), body...)
		if _, tail, err := k.CommentBody(original); err == nil {
			out = append(out, tail...)
		}
	case KindVorbis:
		out = append([]byte(vorbisCommentPrefix), body...)
		out = append(out, 0x01)
	case KindTheora:
		out = append([]byte(theoraCommentPrefix), body...)
	case KindSpeex:
		out = append([]byte(nil), body...)
	case KindFLAC:
		if len(body) > flacMaxBlockSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrCommentTooLarge, len(body))
		}
		blockType := byte(flacCommentBlockType)
		if len(original) > 0 && original[0]&flacLastBlockFlag != 0 {
			blockType |= flacLastBlockFlag
		}
		n := len(body)
		out = append([]byte{blockType, byte(n >> 16), byte(n >> 8), byte(n)}, body...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStream, k)
	}
	return out, nil
}

// commentEnd walks a comment structure and returns its encoded length.
func commentEnd(b []byte) (int, bool) {
	var off int
	next := func() (uint32, bool) {
		if len(b)-off < 4 {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(b[off:])
		off += 4
		return v, true
	}
	skip := func() bool {
		n, ok := next()
		if !ok || uint64(n) > uint64(len(b)-off) {
			return false
		}
		off += int(n)
		return true
	}

	if !skip() {
		return 0, false
	}
	count, ok := next()
	if !ok {
		return 0, false
	}
	for i := uint32(0); i < count; i++ {
		if !skip() {
			return 0, false
		}
	}
	return off, true
}
