// Package protocol implements the length-prefixed framing used between the
// rate server and its clients.
//
// Every frame is a 4-byte little-endian signed length followed by that many
// bytes of ASCII text. A client sends two frames per exchange request (the
// source and target currency codes) and receives one frame with the result.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 4

	// MaxFrameSize bounds the payload a peer may announce
	MaxFrameSize = 4096
)

var ErrMalformedFrame = errors.New("malformed frame")

// ReadFrame reads one frame and returns its payload as ASCII text
func ReadFrame(r io.Reader) (string, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	n := int32(binary.LittleEndian.Uint32(header[:]))
	if n < 0 || n > MaxFrameSize {
		return "", fmt.Errorf("%w: length %d", ErrMalformedFrame, n)
	}
	if n == 0 {
		return "", nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return toASCII(payload), nil
}

// WriteFrame writes s as a single frame with one Write call
func WriteFrame(w io.Writer, s string) error {
	if len(s) > MaxFrameSize {
		return fmt.Errorf("%w: length %d", ErrMalformedFrame, len(s))
	}

	buf := make([]byte, headerSize+len(s))
	binary.LittleEndian.PutUint32(buf[:headerSize], uint32(len(s)))
	copy(buf[headerSize:], s)
	asciiInPlace(buf[headerSize:])

	_, err := w.Write(buf)
	return err
}

// toASCII replaces bytes outside 7-bit ASCII with '?'
func toASCII(b []byte) string {
	asciiInPlace(b)
	return string(b)
}

func asciiInPlace(b []byte) {
	for i, c := range b {
		if c > 0x7f {
			b[i] = '?'
		}
	}
}
