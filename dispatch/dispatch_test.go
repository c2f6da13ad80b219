package dispatch

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/mock"
	"github.com/harsh-quidich/camxfer/payload"
	"github.com/harsh-quidich/camxfer/queue"
)

func init() {
	log.InitExternal(&mock.Logger{})
}

func TestWorkerSendsFrameOverTCP(t *testing.T) {
	dir := t.TempDir()
	path, err := mock.WriteFrame(dir, "cam01-000001.jpg", 128)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())

	type result struct {
		hdr payload.Header
		err error
	}
	got := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- result{err: err}
			return
		}
		defer conn.Close()
		dec := payload.NewDecoder(conn)
		hdr, err := dec.ReadHeader()
		if err == nil {
			dec.CopyPayload(io.Discard, hdr.PayloadLen, 8192)
		}
		got <- result{hdr: hdr, err: err}
	}()

	conf := &camxfer.SendConf{
		Host:       host,
		Conns:      1,
		ChunkBytes: 8 * 1024,
	}
	conf.SetDefaults()
	conf.Port = mustAtoi(t, portStr)

	q := queue.New(1, 1)
	q.Push(camxfer.TransferTask{
		Entry:           camxfer.SourceEntry{Name: "cam01-000001.jpg", AbsolutePath: path, SizeAtProbe: 128},
		DestinationPath: filepath.Join("cam01", "cam01-000001.jpg"),
	})
	q.Close()

	stats := &camxfer.Stats{}
	done := make(chan string, 1)
	d := New(conf, q, stats, done)
	d.Run()

	select {
	case name := <-done:
		if name != "cam01-000001.jpg" {
			t.Fatalf("unexpected done name: %s", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher to report done")
	}

	r := <-got
	if r.err != nil {
		t.Fatalf("receiver side failed: %v", r.err)
	}
	if r.hdr.Tag != camxfer.ProtoWithDest || r.hdr.Name != "cam01-000001.jpg" ||
		r.hdr.Dest != "cam01" || r.hdr.PayloadLen != 128 {
		t.Fatalf("unexpected header: %s", spew.Sdump(r.hdr))
	}
	if stats.FilesSent != 1 {
		t.Fatalf("expected 1 file sent, got %d", stats.FilesSent)
	}
}

func mustAtoi(t *testing.T, s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("invalid port string: %s", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
