// Package payload implements the wire framing: one file
// per frame, bounded-size chunked streaming, all integers big-endian.
package payload

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/harsh-quidich/camxfer"
)

// deadlineSetter is satisfied by net.Conn; writeTimeout is a no-op when w
// doesn't implement it (e.g. in tests that encode straight to a buffer).
type deadlineSetter interface {
	SetWriteDeadline(time.Time) error
}

// Encoder writes one WireFrame per file onto a net.Conn (or any io.Writer),
// reading the payload from disk in bounded chunks the way bin.go streamed
// bin parts from an sts.Readable.
type Encoder struct {
	w            io.Writer
	chunkBytes   int64
	writeTimeout time.Duration
}

// NewEncoder creates an Encoder that streams payload bytes in chunks of at
// most chunkBytes at a time. If w implements deadlineSetter and writeTimeout
// is positive, a fresh write deadline is set before every chunk write so a
// stalled peer can't hang the caller indefinitely.
func NewEncoder(w io.Writer, chunkBytes int64, writeTimeout time.Duration) *Encoder {
	if chunkBytes <= 0 {
		chunkBytes = 8 * 1024 * 1024
	}
	return &Encoder{w: w, chunkBytes: chunkBytes, writeTimeout: writeTimeout}
}

// WriteFrame sends one file. If dest is non-empty the with-destination
// protocol tag is used; otherwise the legacy tag is used and dest is
// omitted entirely.
func (e *Encoder) WriteFrame(name, dest string, size int64, r io.Reader) error {
	if len(name) > camxfer.MaxNameLen {
		return fmt.Errorf("name too long: %d bytes", len(name))
	}
	if dest != "" && len(dest) > camxfer.MaxDestLen {
		return fmt.Errorf("dest too long: %d bytes", len(dest))
	}
	tag := camxfer.ProtoLegacy
	if dest != "" {
		tag = camxfer.ProtoWithDest
	}
	if err := e.writeByte(tag); err != nil {
		return err
	}
	if err := e.writeLenPrefixed(name); err != nil {
		return err
	}
	if tag == camxfer.ProtoWithDest {
		if err := e.writeLenPrefixed(dest); err != nil {
			return err
		}
	}
	if err := e.writeU64(uint64(size)); err != nil {
		return err
	}
	return e.writePayload(r, size)
}

func (e *Encoder) writeByte(b byte) error {
	return e.writeAll([]byte{b})
}

func (e *Encoder) writeLenPrefixed(s string) error {
	if err := e.writeU32(uint32(len(s))); err != nil {
		return err
	}
	return e.writeAll([]byte(s))
}

func (e *Encoder) writeU32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.writeAll(b[:])
}

func (e *Encoder) writeU64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return e.writeAll(b[:])
}

// writePayload streams exactly size bytes from r in bounded chunks. A chunk
// counts as sent only once all of its bytes were written; a partial write
// that reports no error is continued, and any write error (io.ErrShortWrite
// included) fails the frame.
func (e *Encoder) writePayload(r io.Reader, size int64) error {
	buf := make([]byte, e.chunkBytes)
	var sent int64
	for sent < size {
		want := e.chunkBytes
		if remain := size - sent; remain < want {
			want = remain
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("reading payload: %w", err)
		}
		if err := e.writeAll(buf[:n]); err != nil {
			return fmt.Errorf("writing payload: %w", err)
		}
		sent += int64(n)
	}
	return nil
}

func (e *Encoder) writeAll(b []byte) error {
	if e.writeTimeout > 0 {
		if ds, ok := e.w.(deadlineSetter); ok {
			ds.SetWriteDeadline(time.Now().Add(e.writeTimeout))
		}
	}
	for len(b) > 0 {
		n, err := e.w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Header is the decoded, not-yet-streamed portion of a frame: everything up
// to (but not including) the payload bytes.
type Header struct {
	Tag        byte
	Name       string
	Dest       string
	PayloadLen int64
}

// Decoder reads frames off a net.Conn (or any io.Reader), walking the state
// machine, one header at a time; callers stream the payload themselves via
// CopyPayload so they can write straight to a temp file without buffering.
type Decoder struct {
	r io.Reader
}

// NewDecoder creates a Decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadHeader reads one frame's tag/name/dest/payload-length. io.EOF is
// returned unmodified when the peer closes cleanly between frames.
func (d *Decoder) ReadHeader() (Header, error) {
	var h Header
	tagBuf := make([]byte, 1)
	if _, err := io.ReadFull(d.r, tagBuf); err != nil {
		return h, err
	}
	h.Tag = tagBuf[0]
	switch h.Tag {
	case camxfer.ProtoLegacy, camxfer.ProtoWithDest:
	default:
		return h, fmt.Errorf("unknown protocol tag: 0x%02x", h.Tag)
	}
	name, err := d.readLenPrefixed(camxfer.MaxNameLen)
	if err != nil {
		return h, fmt.Errorf("reading name: %w", err)
	}
	h.Name = name
	if h.Tag == camxfer.ProtoWithDest {
		dest, err := d.readLenPrefixed(camxfer.MaxDestLen)
		if err != nil {
			return h, fmt.Errorf("reading dest: %w", err)
		}
		h.Dest = dest
	}
	size, err := d.readU64()
	if err != nil {
		return h, fmt.Errorf("reading payload length: %w", err)
	}
	h.PayloadLen = int64(size)
	return h, nil
}

// ReadCount reads the optional leading u32 file_count for count-first
// sessions.
func (d *Decoder) ReadCount() (int, error) {
	n, err := d.readU32()
	return int(n), err
}

// CopyPayload streams exactly n bytes from the connection to w in bounded
// chunks, returning the number of bytes actually written before any error.
func (d *Decoder) CopyPayload(w io.Writer, n int64, chunkBytes int64) (int64, error) {
	if chunkBytes <= 0 {
		chunkBytes = 8 * 1024 * 1024
	}
	return io.CopyN(w, d.r, n)
}

func (d *Decoder) readLenPrefixed(max int) (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	if int(n) > max {
		return "", fmt.Errorf("length %d exceeds limit %d", n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *Decoder) readU32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *Decoder) readU64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
