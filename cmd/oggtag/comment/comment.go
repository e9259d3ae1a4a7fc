// Package comment implements the Vorbis comment structure shared by the
// Ogg codecs: a vendor string followed by a list of KEY=value fields.
package comment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrTruncated    = errors.New("comment: truncated")
	ErrInvalidField = errors.New("comment: invalid field")
)

const DefaultVendor = "oggtag"

var upper = cases.Upper(language.Und)

type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type Comment struct {
	Vendor string  `json:"vendor" yaml:"vendor"`
	Fields []Field `json:"fields" yaml:"fields"`
	// Invalid holds entries that are not KEY=VALUE pairs with a legal key.
	// They are written back unchanged after the fields.
	Invalid []string `json:"invalid,omitempty" yaml:"invalid,omitempty"`
}

// NormalizeKey returns the canonical, upper case, form of a field name.
// Field names are case-insensitive.
func NormalizeKey(key string) string {
	return upper.String(key)
}

// ValidKey reports whether key is a legal field name: printable ASCII
// without '='.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x20 || c > 0x7d || c == '=' {
			return false
		}
	}
	return true
}

func New(vendor string) *Comment {
	return &Comment{Vendor: vendor}
}

// Unmarshal decodes a comment structure. It is lenient: on truncated input
// or invalid fields it returns everything decoded so far along with an
// error wrapping ErrTruncated or ErrInvalidField. Invalid entries are kept
// in Invalid.
func Unmarshal(b []byte) (*Comment, error) {
	c := &Comment{}
	d := decoder{b: b}

	vendor, ok := d.string()
	if !ok {
		return c, fmt.Errorf("%w: vendor string", ErrTruncated)
	}
	c.Vendor = vendor

	count, ok := d.uint32()
	if !ok {
		return c, fmt.Errorf("%w: field count", ErrTruncated)
	}

	var errs []error
	for i := uint32(0); i < count; i++ {
		entry, ok := d.string()
		if !ok {
			errs = append(errs, fmt.Errorf("%w: field %d of %d", ErrTruncated, i+1, count))
			break
		}
		key, value, found := strings.Cut(entry, "=")
		if !found || !ValidKey(key) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidField, entry))
			c.Invalid = append(c.Invalid, entry)
			continue
		}
		c.Fields = append(c.Fields, Field{Key: key, Value: value})
	}

	return c, errors.Join(errs...)
}

// Marshal encodes the comment structure, without any codec framing.
func (c *Comment) Marshal() []byte {
	b := appendString(nil, c.Vendor)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(c.Fields)+len(c.Invalid)))
	for _, f := range c.Fields {
		b = appendString(b, f.Key+"="+f.Value)
	}
	for _, entry := range c.Invalid {
		b = appendString(b, entry)
	}
	return b
}

func (c *Comment) Clone() *Comment {
	return &Comment{
		Vendor:  c.Vendor,
		Fields:  slices.Clone(c.Fields),
		Invalid: slices.Clone(c.Invalid),
	}
}

// Get returns all the values of a field, in order.
func (c *Comment) Get(key string) []string {
	key = NormalizeKey(key)
	var values []string
	for _, f := range c.Fields {
		if NormalizeKey(f.Key) == key {
			values = append(values, f.Value)
		}
	}
	return values
}

// GetFirst returns the first value of a field or an empty string.
func (c *Comment) GetFirst(key string) string {
	key = NormalizeKey(key)
	for _, f := range c.Fields {
		if NormalizeKey(f.Key) == key {
			return f.Value
		}
	}
	return ""
}

// Set replaces every value of a field. The new values take the position of
// the first existing one, or go last. Setting no values removes the field.
func (c *Comment) Set(key string, values ...string) {
	norm := NormalizeKey(key)
	at := -1
	fields := make([]Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if NormalizeKey(f.Key) == norm {
			if at < 0 {
				at = len(fields)
			}
			continue
		}
		fields = append(fields, f)
	}
	if at < 0 {
		at = len(fields)
	}

	added := make([]Field, 0, len(values))
	for _, v := range values {
		added = append(added, Field{Key: norm, Value: v})
	}
	c.Fields = slices.Insert(fields, at, added...)
}

// Add appends a value to a field.
func (c *Comment) Add(key, value string) {
	c.Fields = append(c.Fields, Field{Key: NormalizeKey(key), Value: value})
}

// Remove deletes every value of a field and returns how many were removed.
func (c *Comment) Remove(key string) int {
	key = NormalizeKey(key)
	n := len(c.Fields)
	c.Fields = slices.DeleteFunc(c.Fields, func(f Field) bool {
		return NormalizeKey(f.Key) == key
	})
	return n - len(c.Fields)
}

// Keys returns the distinct normalized field names in order of first
// appearance.
func (c *Comment) Keys() []string {
	var keys []string
	for _, f := range c.Fields {
		if k := NormalizeKey(f.Key); !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

type decoder struct {
	b   []byte
	off int
}

func (d *decoder) uint32() (uint32, bool) {
	if len(d.b)-d.off < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, true
}

func (d *decoder) string() (string, bool) {
	n, ok := d.uint32()
	if !ok || uint64(n) > uint64(len(d.b)-d.off) {
		return "", false
	}
	s := string(d.b[d.off : d.off+int(n)])
	d.off += int(n)
	return s, true
}
