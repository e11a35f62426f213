package networking

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// column is one fixed-width field at a fixed offset inside a payload
type column struct {
	name   string
	offset int
	width  int
}

func (c column) end() int {
	return c.offset + c.width
}

// layout is the ordered column list shared by encode and decode.
type layout []column

type field struct {
	name  string
	width int
}

// newLayout places fields back to back starting at offset 0
func newLayout(fields ...field) layout {
	l := make(layout, 0, len(fields))
	offset := 0
	for _, f := range fields {
		l = append(l, column{name: f.name, offset: offset, width: f.width})
		offset += f.width
	}
	return l
}

// size returns the length of the fixed part of the layout
func (l layout) size() int {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].end()
}

// col looks a column up by name. Unknown names are programming errors.
func (l layout) col(name string) column {
	for _, c := range l {
		if c.name == name {
			return c
		}
	}
	panic("networking: layout has no column " + name)
}

// putString writes s zero padded, leaving room for the terminating zero.
func (c column) putString(buf []byte, s string) error {
	if len(s) > c.width-1 {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrEncoding, c.name, len(s), c.width-1)
	}
	copy(buf[c.offset:c.end()], s)
	return nil
}

func (c column) putBytes(buf, b []byte) error {
	if len(b) > c.width {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrEncoding, c.name, len(b), c.width)
	}
	copy(buf[c.offset:c.end()], b)
	return nil
}

func (c column) putUint16(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf[c.offset:c.end()], v)
}

func (c column) putUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf[c.offset:c.end()], v)
}

// string reads up to the first zero byte of the column
func (c column) string(buf []byte) string {
	raw := buf[c.offset:c.end()]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func (c column) bytes(buf []byte) []byte {
	out := make([]byte, c.width)
	copy(out, buf[c.offset:c.end()])
	return out
}

func (c column) uint16(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf[c.offset:c.end()])
}

func (c column) uint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[c.offset:c.end()])
}
