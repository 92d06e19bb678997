// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/util"
)

// DefaultReadSize is the size of each body read in streaming mode.
const DefaultReadSize = 4096

// =============================================================================
// LINE DECODER
// =============================================================================

// Decoder turns arbitrary byte slices into complete text lines.
//
// A multi-byte UTF-8 sequence split across two Feed calls is held in pending
// until the rest arrives; bytes after the last newline are held in line.
// Invalid sequences decode to U+FFFD.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte // incomplete UTF-8 sequence from the previous feed
	line    []byte // text after the last newline
	scratch []byte
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		utf8:    unicode.UTF8.NewDecoder(),
		scratch: make([]byte, 1024),
	}
}

// Feed decodes p and returns every line completed by it, without the
// trailing newline. Blank lines are dropped.
func (d *Decoder) Feed(p []byte) []string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}
	d.line = append(d.line, d.decode(src, false)...)
	return d.splitLines()
}

// Flush ends the input. Any carried bytes are decoded as replacement
// characters and an unterminated last line is returned.
func (d *Decoder) Flush() []string {
	if len(d.pending) > 0 {
		src := d.pending
		d.pending = nil
		d.line = append(d.line, d.decode(src, true)...)
	}
	lines := d.splitLines()
	if last := strings.TrimSpace(string(d.line)); last != "" {
		lines = append(lines, last)
	}
	d.line = d.line[:0]
	d.utf8.Reset()
	return lines
}

// Buffered reports how many bytes are held waiting for more input.
func (d *Decoder) Buffered() int {
	return len(d.pending) + len(d.line)
}

func (d *Decoder) decode(src []byte, atEOF bool) []byte {
	out := make([]byte, 0, len(src))
	for {
		nDst, nSrc, err := d.utf8.Transform(d.scratch, src, atEOF)
		out = append(out, d.scratch[:nDst]...)
		src = src[nSrc:]

		switch {
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
		}
		return out
	}
}

func (d *Decoder) splitLines() []string {
	var lines []string
	for {
		i := bytes.IndexByte(d.line, '\n')
		if i < 0 {
			break
		}
		if text := strings.TrimSpace(string(d.line[:i])); text != "" {
			lines = append(lines, text)
		}
		d.line = d.line[i+1:]
	}
	// Compact so the backing array does not grow without bound.
	if len(d.line) == 0 {
		d.line = d.line[:0:0]
	}
	return lines
}

// =============================================================================
// STREAM READER
// =============================================================================

// readBufPool reuses body read buffers across streamed replies.
var readBufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultReadSize)
		return &buf
	},
}

// StreamReader pulls NDJSON chunks from a response body.
//
// Next blocks only while waiting for body bytes. Malformed lines are logged
// and skipped.
type StreamReader struct {
	body    io.Reader
	schema  ResponseSchema
	logger  *log.Logger
	dec     *Decoder
	readBuf []byte
	pooled  *[]byte

	queue []string
	eof   bool
	done  bool

	accumulator strings.Builder
	model       string
	chunkCount  int
	skipped     int
}

// NewStreamReader creates a reader over r using the Ollama schema.
func NewStreamReader(r io.Reader) *StreamReader {
	return newStreamReader(r, SchemaOllama, nil, 0)
}

func newStreamReader(r io.Reader, schema ResponseSchema, logger *log.Logger, readSize int) *StreamReader {
	if schema == nil {
		schema = SchemaOllama
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &StreamReader{
		body:   r,
		schema: schema,
		logger: logger,
		dec:    NewDecoder(),
	}
	if readSize <= 0 || readSize == DefaultReadSize {
		s.pooled = readBufPool.Get().(*[]byte)
		s.readBuf = *s.pooled
	} else {
		s.readBuf = make([]byte, readSize)
	}
	return s
}

// Next returns the next decoded chunk. It returns io.EOF once the stream
// has ended, either with a done chunk or at the end of the body.
func (s *StreamReader) Next() (StreamChunk, error) {
	for {
		if s.done {
			return StreamChunk{}, io.EOF
		}

		if len(s.queue) > 0 {
			line := s.queue[0]
			s.queue = s.queue[1:]

			chunk, err := s.schema.Decode([]byte(line))
			if err != nil {
				s.skipped++
				s.logger.Printf("STREAM_SKIP | schema=%s error=%q line=%q",
					s.schema.Name(), err.Error(), util.TruncateRunes(line, 80))
				continue
			}

			s.chunkCount++
			if chunk.Model != "" {
				s.model = chunk.Model
			}
			s.accumulator.WriteString(chunk.Content)
			if chunk.Done {
				s.done = true
			}
			return chunk, nil
		}

		if s.eof {
			s.done = true
			continue
		}

		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.queue = append(s.queue, s.dec.Feed(s.readBuf[:n])...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return StreamChunk{}, transportError(err)
			}
			s.queue = append(s.queue, s.dec.Flush()...)
			s.eof = true
		}
	}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if callback != nil {
			callback(chunk)
		}
	}
}

// Release returns the read buffer to the pool. The reader must not be used
// afterwards.
func (s *StreamReader) Release() {
	if s.pooled != nil {
		readBufPool.Put(s.pooled)
		s.pooled = nil
	}
	s.readBuf = nil
}

// Accumulated returns the concatenated content of every chunk so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}

// Skipped returns the number of malformed lines dropped.
func (s *StreamReader) Skipped() int {
	return s.skipped
}
