package payload

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeWithDest(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 4, 0)
	body := "hello world"
	if err := enc.WriteFrame("frame_camera01_000000001.jpg", "camera01", int64(len(body)), strings.NewReader(body)); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf)
	h, err := dec.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if h.Tag != 0x02 {
		t.Fatalf("expected with-dest tag, got 0x%02x", h.Tag)
	}
	if h.Name != "frame_camera01_000000001.jpg" || h.Dest != "camera01" {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.PayloadLen != int64(len(body)) {
		t.Fatalf("got payload len %d, want %d", h.PayloadLen, len(body))
	}
	var out bytes.Buffer
	if _, err := dec.CopyPayload(&out, h.PayloadLen, 4); err != nil {
		t.Fatal(err)
	}
	if out.String() != body {
		t.Fatalf("got %q, want %q", out.String(), body)
	}
}

func TestEncodeDecodeLegacy(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 1024, 0)
	body := "abc"
	if err := enc.WriteFrame("frame.jpg", "", int64(len(body)), strings.NewReader(body)); err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder(&buf)
	h, err := dec.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if h.Tag != 0x01 {
		t.Fatalf("expected legacy tag, got 0x%02x", h.Tag)
	}
	if h.Dest != "" {
		t.Fatalf("expected empty dest, got %q", h.Dest)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0xFF}))
	if _, err := dec.ReadHeader(); err == nil {
		t.Fatal("expected error for unknown protocol tag")
	}
}

func TestDecodeOversizedName(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 1024, 0)
	// Craft a legal-looking header but with a name length claim too large.
	buf.WriteByte(0x01)
	lenBuf := []byte{0x7F, 0xFF, 0xFF, 0xFF}
	buf.Write(lenBuf)
	_ = enc
	dec := NewDecoder(&buf)
	if _, err := dec.ReadHeader(); err == nil {
		t.Fatal("expected error for oversized name length")
	}
}
