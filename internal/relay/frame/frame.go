// Package frame implements the relay wire unit: a fixed-size block of UTF-8 text padded with zero bytes.
package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Size - length in bytes of every frame on the wire.
const Size = 32

var (
	// ErrTooLarge - returns when encoded text does not fit into a single frame.
	ErrTooLarge = errors.New("frame: text exceeds frame size")

	// ErrInvalidEncoding - returns when text or frame content is not valid UTF-8.
	ErrInvalidEncoding = errors.New("frame: invalid UTF-8 content")

	// ErrEmbeddedZero - returns when text contains zero byte, which is reserved for padding.
	ErrEmbeddedZero = errors.New("frame: text contains zero byte")
)

// Encode - builds frame from given text, the rest of frame is filled with zero bytes.
func Encode(text string) ([]byte, error) {
	if len(text) > Size {
		return nil, ErrTooLarge
	}
	if !utf8.ValidString(text) {
		return nil, ErrInvalidEncoding
	}
	if strings.IndexByte(text, 0) >= 0 {
		return nil, ErrEmbeddedZero
	}
	f := make([]byte, Size)
	copy(f, text)
	return f, nil
}

// Decode - extracts text from frame. Content ends at the first zero byte or at the end of frame.
func Decode(f []byte) (string, error) {
	if i := bytes.IndexByte(f, 0); i >= 0 {
		f = f[:i]
	}
	if !utf8.Valid(f) {
		return "", ErrInvalidEncoding
	}
	return string(f), nil
}

// Reader - reads consecutive frames from underlying stream.
// Partially received frame survives read errors, so it is safe to call Next again
// after the timeout caused by read deadline.
type Reader struct {
	src io.Reader
	buf [Size]byte
	n   int
}

// NewReader - wraps stream to read frames from.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Next - waits for complete frame and returns decoded text.
// Returns io.EOF if stream is ended on frame boundary and io.ErrUnexpectedEOF inside a frame.
func (r *Reader) Next() (string, error) {
	for r.n < Size {
		n, err := r.src.Read(r.buf[r.n:])
		r.n += n
		if r.n == Size {
			break
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && r.n > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	r.n = 0
	return Decode(r.buf[:])
}

// Buffered - returns num of bytes of incomplete frame kept by reader.
func (r *Reader) Buffered() int {
	return r.n
}
