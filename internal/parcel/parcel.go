// Package parcel реализует плоский бинарный формат запросов и ответов binder:
// little-endian int32, выравнивание по 4 байта, строки в UTF-16.
package parcel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// StrictModePolicy записывается перед дескриптором интерфейса.
const StrictModePolicy int32 = 0

var (
	// ErrShortRead возвращается при чтении за концом буфера.
	ErrShortRead = errors.New("parcel: not enough data")
	// ErrBadLength возвращается для некорректной длины строки.
	ErrBadLength = errors.New("parcel: bad string length")
)

var wireCharset = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Writer накапливает parcel в порядке записи полей.
type Writer struct {
	buf []byte
	enc *encoding.Encoder
}

// NewWriter создает пустой parcel.
func NewWriter() *Writer {
	return &Writer{enc: wireCharset.NewEncoder()}
}

// Bytes возвращает накопленный буфер.
func (w *Writer) Bytes() []byte { return w.buf }

// Len возвращает размер parcel в байтах.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteBool пишет bool как int32 0/1.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteInt32(1)
		return
	}
	w.WriteInt32(0)
}

// WriteString16 пишет длину в code unit'ах UTF-16, данные и NUL-терминатор.
func (w *Writer) WriteString16(s string) error {
	units, err := w.enc.Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("encode string16: %w", err)
	}
	n := len(units) / 2
	if n > math.MaxInt32-1 {
		return fmt.Errorf("string16 of %d units: %w", n, ErrBadLength)
	}
	w.WriteInt32(int32(n))
	w.buf = append(w.buf, units...)
	w.buf = append(w.buf, 0, 0)
	w.pad()
	return nil
}

// WriteNullString16 пишет отсутствующую строку (длина -1).
func (w *Writer) WriteNullString16() {
	w.WriteInt32(-1)
}

// WriteInterfaceToken пишет заголовок с дескриптором целевого интерфейса.
func (w *Writer) WriteInterfaceToken(descriptor string) error {
	w.WriteInt32(StrictModePolicy)
	return w.WriteString16(descriptor)
}

func (w *Writer) pad() {
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}

// Reader последовательно читает parcel.
type Reader struct {
	buf []byte
	pos int
	dec *encoding.Decoder
}

// NewReader создает reader поверх буфера; буфер не копируется.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, dec: wireCharset.NewDecoder()}
}

// Remaining возвращает число непрочитанных байт.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortRead
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadBool читает int32; любое ненулевое значение считается true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadInt32()
	return v != 0, err
}

// ReadString16 возвращает строку и признак ее наличия (false для длины -1).
func (r *Reader) ReadString16() (string, bool, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return "", false, err
	}
	if n == -1 {
		return "", false, nil
	}
	if n < 0 {
		return "", false, fmt.Errorf("length %d: %w", n, ErrBadLength)
	}
	size := (int64(n) + 1) * 2
	padded := (size + 3) &^ 3
	if int64(r.Remaining()) < padded {
		return "", false, ErrShortRead
	}
	units := r.buf[r.pos : r.pos+int(n)*2]
	if r.buf[r.pos+int(n)*2] != 0 || r.buf[r.pos+int(n)*2+1] != 0 {
		return "", false, fmt.Errorf("missing terminator: %w", ErrBadLength)
	}
	r.pos += int(padded)
	out, err := r.dec.Bytes(units)
	if err != nil {
		return "", false, fmt.Errorf("decode string16: %w", err)
	}
	return string(out), true, nil
}

// ReadInterfaceToken читает заголовок и возвращает дескриптор.
func (r *Reader) ReadInterfaceToken() (string, error) {
	if _, err := r.ReadInt32(); err != nil {
		return "", err
	}
	desc, _, err := r.ReadString16()
	return desc, err
}
