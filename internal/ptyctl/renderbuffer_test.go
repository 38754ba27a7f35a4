package ptyctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBufferPlainText(t *testing.T) {
	b := newRenderBuffer()
	b.Write([]byte("hello"))
	assert.Equal(t, "hello", b.String())
}

func TestRenderBufferCarriageReturnOverwrites(t *testing.T) {
	b := newRenderBuffer()
	b.Write([]byte("hello\rHI"))
	assert.Equal(t, "HIllo", b.String())
}

func TestRenderBufferBackspace(t *testing.T) {
	b := newRenderBuffer()
	b.Write([]byte("abc\b\bXY"))
	assert.Equal(t, "aXY", b.String())
}

func TestRenderBufferEraseLineToEnd(t *testing.T) {
	b := newRenderBuffer()
	b.Write([]byte("hello world\r"))
	b.Write([]byte("\x1b[Kgoodbye"))
	assert.Equal(t, "goodbye", b.String())
}

func TestRenderBufferMultiline(t *testing.T) {
	b := newRenderBuffer()
	b.Write([]byte("line1\nline2"))
	assert.Equal(t, "line1\nline2", b.String())
}
