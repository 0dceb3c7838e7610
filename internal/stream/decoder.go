// Package stream turns the chunked body of a translation response into
// interpreted records.
//
// The body is newline delimited JSON. Network chunks do not respect record
// boundaries, so the Decoder keeps the unterminated tail of each chunk and
// prepends it to the next one. Only complete lines leave the Decoder, the
// tail is flushed as a last line once the body ends.
package stream

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"
)

// DefaultChunkSize is the read size used by Lines when size <= 0.
const DefaultChunkSize = 4 * 1024

// Decoder splits byte chunks into complete lines. It works on bytes and
// converts only complete lines to strings, so a multi-byte character split
// across chunks is reassembled too.
type Decoder struct {
	carry []byte
}

// Feed appends chunk to the carry-over buffer and returns the lines it
// completed, in stream order. Blank lines are dropped.
func (d *Decoder) Feed(chunk []byte) []string {
	d.carry = append(d.carry, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(d.carry, '\n')
		if idx < 0 {
			break
		}
		if line, ok := clean(d.carry[:idx]); ok {
			lines = append(lines, line)
		}
		d.carry = d.carry[idx+1:]
	}
	// do not keep the consumed prefix alive
	if len(d.carry) == 0 {
		d.carry = nil
	}
	return lines
}

// Flush returns the unterminated tail, if any, and resets the Decoder.
func (d *Decoder) Flush() (string, bool) {
	line, ok := clean(d.carry)
	d.carry = nil
	return line, ok
}

// Pending reports the number of buffered bytes not yet emitted.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

func clean(b []byte) (string, bool) {
	line := strings.TrimSpace(string(b))
	return line, line != ""
}

// Lines reads r in chunks of size bytes and yields every complete line.
// A read error other than io.EOF is yielded once and ends the sequence,
// the buffered tail is dropped in that case as it can't be trusted.
//
//	for line, err := range stream.Lines(body, 0) {}
func Lines(r io.Reader, size int) iter.Seq2[string, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func(string, error) bool) {
		var dec Decoder
		buf := make([]byte, size)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, line := range dec.Feed(buf[:n]) {
					if !yield(line, nil) {
						return
					}
				}
			}
			switch {
			case errors.Is(err, io.EOF):
				if line, ok := dec.Flush(); ok {
					yield(line, nil)
				}
				return
			case err != nil:
				yield("", err)
				return
			}
		}
	}
}
