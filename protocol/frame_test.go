package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "USD"))

	assert.Equal(t, []byte{3, 0, 0, 0, 'U', 'S', 'D'}, buf.Bytes())
}

func TestReadFrame_Sequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "USD"))
	require.NoError(t, WriteFrame(&buf, ""))
	require.NoError(t, WriteFrame(&buf, "EUR"))

	for _, want := range []string{"USD", "", "EUR"} {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_Errors(t *testing.T) {
	header := func(n int32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(n))
		return b
	}

	t.Run("negative length", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(header(-1)))
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("oversized length", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(header(MaxFrameSize + 1)))
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{1, 0}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("short payload", func(t *testing.T) {
		data := append(header(5), 'U', 'S')
		_, err := ReadFrame(bytes.NewReader(data))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("header only", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(header(3)))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestFrame_NonASCII(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "€1"))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "???1", got)
}

func TestWriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, string(make([]byte, MaxFrameSize+1)))
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Zero(t, buf.Len())
}
