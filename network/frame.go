package network

import (
	"bytes"
	"context"
	"io"
	"strings"
)

// DefaultChunkSize is the size of each raw read from the peer.
const DefaultChunkSize = 1024

// LineBuffer accumulates raw bytes and extracts complete newline-delimited
// frames. Frames are trimmed of surrounding whitespace; empty frames are
// discarded.
//
// Bytes are buffered undecoded and each frame is decoded as UTF-8 only once
// complete, so the result does not depend on where reads split the stream.
type LineBuffer struct {
	pending bytes.Buffer
}

// Receive appends data and returns every frame it completed, in order.
func (b *LineBuffer) Receive(data []byte) []string {
	b.pending.Write(data)

	var frames []string
	for {
		buf := b.pending.Bytes()
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		frame := decodeFrame(buf[:idx])
		b.pending.Next(idx + 1)
		if frame != "" {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Pending returns the buffered partial frame.
func (b *LineBuffer) Pending() string {
	return strings.ToValidUTF8(b.pending.String(), "�")
}

// Reset discards any buffered partial frame.
func (b *LineBuffer) Reset() {
	b.pending.Reset()
}

func decodeFrame(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
}

// FrameReader turns a byte stream into a lazy sequence of frames.
// It is not restartable: once the stream ends, every call returns the same error.
type FrameReader struct {
	r      io.Reader
	chunk  []byte
	lines  LineBuffer
	queued []string
	err    error

	// onRead observes every successful read (stats).
	onRead func(n int)
}

// NewFrameReader reads r in chunks of chunkSize bytes (DefaultChunkSize if <= 0).
func NewFrameReader(r io.Reader, chunkSize int) *FrameReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &FrameReader{r: r, chunk: make([]byte, chunkSize)}
}

// Next returns the next frame. It blocks reading from the stream until a frame
// completes. ctx is checked before every read; a cancelled ctx ends the
// sequence with ctx.Err(). Stream closure ends it with io.EOF, and any other
// read failure with that error.
func (f *FrameReader) Next(ctx context.Context) (string, error) {
	for {
		if len(f.queued) > 0 {
			frame := f.queued[0]
			f.queued = f.queued[1:]
			return frame, nil
		}
		if f.err != nil {
			return "", f.err
		}
		if err := ctx.Err(); err != nil {
			f.err = err
			return "", err
		}

		n, err := f.r.Read(f.chunk)
		if n > 0 {
			if f.onRead != nil {
				f.onRead(n)
			}
			f.queued = append(f.queued, f.lines.Receive(f.chunk[:n])...)
		}
		if err != nil {
			// Frames completed by this final chunk are still delivered first.
			f.err = err
		}
		// A zero-byte read with no error is not an end condition.
	}
}

// Pending returns the buffered partial frame.
func (f *FrameReader) Pending() string {
	return f.lines.Pending()
}
