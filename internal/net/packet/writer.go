package packet

import "encoding/binary"

// MaxString bounds a single string field so that a frame always fits the
// u16 frame header with room for the opcode and other fields.
const MaxString = 60 << 10

// Writer builds a console frame payload.
type Writer struct {
	buf []byte
}

func NewWriter(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.buf = append(w.buf, opcode)
	return w
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteString writes s with a u16 length prefix. Strings longer than
// MaxString are truncated.
func (w *Writer) WriteString(s string) {
	if len(s) > MaxString {
		s = s[:MaxString]
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}
