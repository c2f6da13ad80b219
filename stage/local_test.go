package stage

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/mock"
	"github.com/harsh-quidich/camxfer/payload"
)

func init() {
	log.InitExternal(&mock.Logger{})
}

func serveOnPipe(t *testing.T, w *Worker) (clientConn net.Conn, done chan struct{}) {
	serverConn, client := net.Pipe()
	done = make(chan struct{})
	go func() {
		w.Serve(serverConn)
		close(done)
	}()
	return client, done
}

func TestReceiveOneFrameWithDest(t *testing.T) {
	outDir := t.TempDir()
	stats := &camxfer.Stats{}
	w := New(Options{WorkerID: "w0", OutDir: outDir, UseDestPaths: true, Stats: stats})

	client, done := serveOnPipe(t, w)
	content := []byte("frame-bytes")
	enc := payload.NewEncoder(client, 1024, 0)
	go func() {
		enc.WriteFrame("cam01-000001.jpg", "cam01", int64(len(content)), bytes.NewReader(content))
		client.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving")
	}

	got, err := os.ReadFile(filepath.Join(outDir, "cam01", "cam01-000001.jpg"))
	if err != nil {
		t.Fatalf("expected file at final path: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("unexpected content: %q", got)
	}
	if stats.FilesSent != 1 {
		t.Fatalf("expected 1 file recorded, got %d", stats.FilesSent)
	}
}

func TestReceiveRejectsUnsafeName(t *testing.T) {
	outDir := t.TempDir()
	w := New(Options{WorkerID: "w0", OutDir: outDir})

	client, done := serveOnPipe(t, w)
	content := []byte("x")
	enc := payload.NewEncoder(client, 1024, 0)
	go func() {
		enc.WriteFrame("../escape.jpg", "", int64(len(content)), bytes.NewReader(content))
		client.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving")
	}

	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Fatalf("expected no files written for unsafe name, found %d", len(entries))
	}
}

func TestReceiveRejectsUnknownSource(t *testing.T) {
	outDir := t.TempDir()
	w := New(Options{WorkerID: "w0", OutDir: outDir, UseDestPaths: true, Registry: rejectAll{}})

	client, done := serveOnPipe(t, w)
	content := []byte("x")
	enc := payload.NewEncoder(client, 1024, 0)
	go func() {
		enc.WriteFrame("cam01-000001.jpg", "cam01", int64(len(content)), bytes.NewReader(content))
		client.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving")
	}

	if _, err := os.Stat(filepath.Join(outDir, "cam01", "cam01-000001.jpg")); err == nil {
		t.Fatal("expected file to be rejected, not written")
	}
}

type rejectAll struct{}

func (rejectAll) IsValid(string) bool { return false }

