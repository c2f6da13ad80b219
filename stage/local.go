// Package stage implements the ReceiveWorker: per-connection parsing of the
// wire protocol, temp-file staging, and atomic rename into place. Grounded
// on the original Stage manager's atomic temp-file-then-rename discipline,
// simplified down from its companion-file reassembly and predecessor-wait
// chain, which do not apply here since this protocol sends one complete
// file per frame with no partial resumption or cross-file ordering.
package stage

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/fileutil"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/payload"
)

const (
	idleTimeout  = 60 * time.Second
	readTimeout  = 30 * time.Second
	defaultChunk = 8 * 1024 * 1024
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// Options configures a Worker.
type Options struct {
	WorkerID         string
	OutDir           string
	UseDestPaths     bool
	ExpectCountFirst bool
	ChunkBytes       int64
	Registry         camxfer.Validator
	Hooks            []camxfer.FinalStatusService
	Stats            *camxfer.Stats
	Verbose          bool
}

// Worker serves exactly one accepted connection, running the per-connection
// state machine: AwaitHeader -> AwaitName -> (AwaitDest) -> AwaitPayload ->
// Finalize -> loop.
type Worker struct {
	opts Options
}

// New creates a Worker bound to opts.
func New(opts Options) *Worker {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = defaultChunk
	}
	return &Worker{opts: opts}
}

// Serve drains conn until it closes, an idle timeout elapses, a protocol
// error occurs, or (in count-first mode) the declared number of frames has
// been received. conn is always closed before Serve returns.
func (w *Worker) Serve(conn net.Conn) {
	defer conn.Close()

	dec := payload.NewDecoder(conn)
	count := -1
	if w.opts.ExpectCountFirst {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := dec.ReadCount()
		if err != nil {
			log.Error("STAGE failed to read file_count:", err.Error())
			return
		}
		count = n
	}

	received := 0
	for count < 0 || received < count {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		ok := w.receiveOne(conn, dec)
		if !ok {
			return
		}
		received++
	}
}

// receiveOne runs one full AwaitHeader..Finalize cycle. It returns false
// when the connection should be closed (clean EOF between frames, or any
// protocol/IO error mid-frame).
func (w *Worker) receiveOne(conn net.Conn, dec *payload.Decoder) bool {
	hdr, err := dec.ReadHeader()
	if err != nil {
		if err != io.EOF {
			log.Error("STAGE header read failed:", err.Error())
		}
		return false
	}

	if !fileutil.IsSafeRelPath(hdr.Name) {
		log.Error("STAGE rejected unsafe name:", hdr.Name)
		io.CopyN(io.Discard, conn, hdr.PayloadLen)
		return false
	}
	if hdr.Tag == camxfer.ProtoWithDest && hdr.Dest != "" && !fileutil.IsSafeRelPath(hdr.Dest) {
		log.Error("STAGE rejected unsafe dest:", hdr.Dest)
		io.CopyN(io.Discard, conn, hdr.PayloadLen)
		return false
	}

	source, finalDir := w.resolveDest(hdr)
	if w.opts.Registry != nil && !w.opts.Registry.IsValid(source) {
		log.Error("STAGE rejected unknown source:", source)
		io.CopyN(io.Discard, conn, hdr.PayloadLen)
		return false
	}

	started := time.Now()
	targetPath := filepath.Join(finalDir, hdr.Name)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		log.Error("STAGE mkdir failed:", err.Error())
		io.CopyN(io.Discard, conn, hdr.PayloadLen)
		return false
	}

	tempPath := filepath.Join(filepath.Dir(targetPath), fmt.Sprintf(
		".%s.part.%s.%d", filepath.Base(hdr.Name), w.opts.WorkerID, nextSeq(),
	))
	if err := w.writeAndFinalize(conn, dec, tempPath, targetPath, hdr.PayloadLen); err != nil {
		log.Error("STAGE receive failed for", hdr.Name, ":", err.Error())
		return false
	}

	w.notify(camxfer.ReceiptEvent{
		Source:      source,
		Name:        hdr.Name,
		Path:        targetPath,
		Size:        hdr.PayloadLen,
		ElapsedMs:   time.Since(started).Milliseconds(),
		FinalizedAt: time.Now(),
	})
	return true
}

// resolveDest derives the source name (the with-dest protocol's leading
// path segment; the legacy protocol has none) and the directory a file
// should land in.
func (w *Worker) resolveDest(hdr payload.Header) (source, finalDir string) {
	finalDir = w.opts.OutDir
	if hdr.Tag != camxfer.ProtoWithDest || hdr.Dest == "" {
		return "", finalDir
	}
	source = firstSegment(hdr.Dest)
	if w.opts.UseDestPaths {
		finalDir = filepath.Join(w.opts.OutDir, hdr.Dest)
	}
	return source, finalDir
}

func firstSegment(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return p
}

// writeAndFinalize streams exactly n bytes from conn to a hidden temp file
// beside targetPath, bounding each read with its own deadline, then renames
// into place. The temp file is removed on any failure at any stage.
func (w *Worker) writeAndFinalize(conn net.Conn, dec *payload.Decoder, tempPath, targetPath string, n int64) error {
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	chunk := w.opts.ChunkBytes
	var written int64
	for written < n {
		want := chunk
		if remain := n - written; remain < want {
			want = remain
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		nw, err := dec.CopyPayload(f, want, chunk)
		written += nw
		if err != nil {
			f.Close()
			os.Remove(tempPath)
			return fmt.Errorf("streaming payload: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

func (w *Worker) notify(event camxfer.ReceiptEvent) {
	if w.opts.Stats != nil {
		w.opts.Stats.AddSent(event.Size, time.Duration(event.ElapsedMs)*time.Millisecond)
	}
	if w.opts.Verbose {
		log.Info("STAGE finalized:", event.Name)
	}
	for _, hook := range w.opts.Hooks {
		if err := hook.Notify(event); err != nil {
			log.Error("STAGE hook failed for", event.Name, ":", err.Error())
		}
	}
}
