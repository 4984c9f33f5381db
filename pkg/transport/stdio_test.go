package transport

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioTransport_ReadsContentLengthFrame(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewStdio(pr, io.Discard, pr, nil)
	defer tr.Close()

	readDone := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := pw.Write([]byte("Content-Length: 11\r\n\r\n{\"a\":\"bcd\"}"))
		readDone <- string(buf[:n])
	}()

	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("write did not complete")
	}

	select {
	case frame := <-tr.Frames():
		assert.Equal(t, `{"a":"bcd"}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("expected a frame")
	}
}

func TestStdioTransport_ZeroByteFrameBecomesEmptyObject(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewStdio(pr, io.Discard, pr, nil)
	defer tr.Close()

	go pw.Write([]byte("Content-Length: 0\r\n\r\n"))

	select {
	case frame := <-tr.Frames():
		assert.Equal(t, "{}", string(frame))
	case <-time.After(time.Second):
		t.Fatal("expected an empty-object frame")
	}
}

func TestStdioTransport_SendWritesHeaderAndBody(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewStdio(io.NopCloser(new(emptyReader)), pw, pw, nil)
	defer tr.Close()

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 128)
		n, _ := io.ReadAtLeast(pr, buf, len("Content-Length: 7\r\n\r\n{\"x\":1}"))
		readDone <- buf[:n]
	}()

	require.NoError(t, tr.Send([]byte(`{"x":1}`)))

	select {
	case data := <-readDone:
		assert.Equal(t, "Content-Length: 7\r\n\r\n{\"x\":1}", string(data))
	case <-time.After(time.Second):
		t.Fatal("expected written frame")
	}
}

type emptyReader struct{}

func (*emptyReader) Read(p []byte) (int, error) {
	return 0, io.EOF
}
