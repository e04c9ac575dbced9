package at

import "bytes"

// Decoder extracts complete CRLF-terminated lines from a byte stream that
// arrives in arbitrary chunks. The buffer is carried explicitly in the
// Decoder value: Push never blocks and returns only the lines that are
// already complete, retaining any partial tail for the next call.
//
// The same stream may switch meaning between AT responses and opaque
// passthrough payload, so the owner can reclaim buffered bytes with Flush
// instead of waiting for a terminator that will never come.
type Decoder struct {
	buf []byte
}

// Push appends p to the buffer and returns all complete lines, without
// their CRLF terminators. Empty input yields no lines.
func (d *Decoder) Push(p []byte) []string {
	d.buf = append(d.buf, p...)
	var lines []string
	for {
		i := bytes.Index(d.buf, []byte(CRLF))
		if i < 0 {
			return lines
		}
		lines = append(lines, string(d.buf[:i]))
		d.buf = d.buf[i+len(CRLF):]
	}
}

// Flush takes ownership of any buffered partial tail and resets the
// decoder. Returns nil when nothing is buffered.
func (d *Decoder) Flush() []byte {
	if len(d.buf) == 0 {
		return nil
	}
	out := d.buf
	d.buf = nil
	return out
}

// Buffered reports the number of bytes held back awaiting a terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
