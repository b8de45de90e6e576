package packet

import (
	"encoding/binary"
	"errors"
)

// ErrShortFrame is reported by Reader.Err after a read ran past the payload.
var ErrShortFrame = errors.New("short console frame")

// Reader decodes the fields of one console frame. Byte 0 is the opcode.
// A read past the end returns the zero value and latches ErrShortFrame.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1}
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) take(n int) []byte {
	if r.err != nil || r.off+n > len(r.data) {
		r.err = ErrShortFrame
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	return b != nil && b[0] != 0
}

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadString reads a u16 length-prefixed string. Embedded NUL bytes survive.
func (r *Reader) ReadString() string {
	hdr := r.take(2)
	if hdr == nil {
		return ""
	}
	return string(r.take(int(binary.LittleEndian.Uint16(hdr))))
}

func (r *Reader) Remaining() int {
	if r.off >= len(r.data) {
		return 0
	}
	return len(r.data) - r.off
}

func (r *Reader) Err() error { return r.err }
